package store

import (
	"os"
	"path/filepath"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// Archive is the content-addressed blob store living under
// <data_root>/archive, laid out exactly as spec.md §6:
//
//	archive/.journal/            tx_log mirror for audit
//	archive/blobs/<aa>/<bb>/<hash>
//	archive/blobs.staging/       preparation area
type Archive struct {
	root       string
	blobsDir   string
	stagingDir string
	journalDir string
}

func newArchive(dataRoot string) (*Archive, error) {
	root := filepath.Join(dataRoot, "archive")
	a := &Archive{
		root:       root,
		blobsDir:   filepath.Join(root, "blobs"),
		stagingDir: filepath.Join(root, "blobs.staging"),
		journalDir: filepath.Join(root, ".journal"),
	}
	for _, dir := range []string{a.blobsDir, a.stagingDir, a.journalDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, mserr.Wrap(mserr.KindIO, "failed to create archive directory", err)
		}
	}
	return a, nil
}

// BlobPath returns the final content-addressed path for hash, whether
// or not it has been published yet.
func (a *Archive) BlobPath(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(a.blobsDir, hash)
	}
	return filepath.Join(a.blobsDir, hash[:2], hash[2:4], hash)
}

// StagingPath returns the temporary path a blob occupies between
// PREPARE and PUBLISH.
func (a *Archive) StagingPath(hash string) string {
	return filepath.Join(a.stagingDir, hash+".staging")
}

// Has reports whether hash's blob has already been published.
func (a *Archive) Has(hash string) bool {
	_, err := os.Stat(a.BlobPath(hash))
	return err == nil
}

// Stage writes bytes to hash's staging path (PREPARE phase). If the
// blob is already published, staging is skipped — idempotent writes
// reuse the existing blob per spec.md §4.1.
func (a *Archive) Stage(hash string, data []byte) error {
	if a.Has(hash) {
		return nil
	}
	if err := os.WriteFile(a.StagingPath(hash), data, 0o644); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to stage blob", err)
	}
	return nil
}

// Publish atomically renames hash's staging blob to its final
// content-addressed path (PUBLISH phase). A no-op if already
// published (idempotent write); returns a KindIntegrity error if hash
// was never staged.
func (a *Archive) Publish(hash string) error {
	if a.Has(hash) {
		os.Remove(a.StagingPath(hash))
		return nil
	}
	staging := a.StagingPath(hash)
	if _, err := os.Stat(staging); err != nil {
		if os.IsNotExist(err) {
			return mserr.New(mserr.KindIntegrity, "no staging blob to publish for hash "+hash)
		}
		return mserr.Wrap(mserr.KindIO, "failed to stat staging blob", err)
	}

	final := a.BlobPath(hash)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to create blob directory", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to publish blob", err)
	}
	return nil
}

// DiscardStaging removes an orphaned staging blob without publishing
// it (roll-back recovery path).
func (a *Archive) DiscardStaging(hash string) error {
	err := os.Remove(a.StagingPath(hash))
	if err != nil && !os.IsNotExist(err) {
		return mserr.Wrap(mserr.KindIO, "failed to discard staging blob", err)
	}
	return nil
}

// Read returns the published bytes for hash.
func (a *Archive) Read(hash string) ([]byte, error) {
	data, err := os.ReadFile(a.BlobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mserr.New(mserr.KindNotFound, "blob not found for hash "+hash)
		}
		return nil, mserr.Wrap(mserr.KindIO, "failed to read blob", err)
	}
	return data, nil
}

// ListStaging returns the hashes of every blob currently sitting in
// the staging area, used by the recovery manager's orphan scan.
func (a *Archive) ListStaging() ([]string, error) {
	entries, err := os.ReadDir(a.stagingDir)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to list staging directory", err)
	}
	var hashes []string
	for _, e := range entries {
		name := e.Name()
		const suffix = ".staging"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			hashes = append(hashes, name[:len(name)-len(suffix)])
		}
	}
	return hashes, nil
}

// ListBlobs walks the blobs directory, returning every published
// blob's content hash, used by the orphan scan and integrity check.
func (a *Archive) ListBlobs() ([]string, error) {
	var hashes []string
	err := filepath.WalkDir(a.blobsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		hashes = append(hashes, d.Name())
		return nil
	})
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to walk blobs directory", err)
	}
	return hashes, nil
}

// JournalDir exposes the tx_log mirror directory for audit writers.
func (a *Archive) JournalDir() string {
	return a.journalDir
}
