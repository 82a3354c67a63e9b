// Package vector implements the pluggable semantic index: an Embedder
// contract (spec.md §4.3) plus a flat, brute-force cosine VectorIndex
// that is the default backend below the ~10^5-skill crossover named in
// spec.md §9 Open Question (b). Above that crossover, an ANN backend
// satisfying the same interface takes over (see ann_sqlitevec.go,
// built only when cgo is enabled).
package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/fnv"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// DefaultDims is the hashed-token embedder's output dimensionality,
// per spec.md §4.3.
const DefaultDims = 384

// Embedder is the pluggable text-to-vector contract, grounded verbatim
// on the teacher's embedding.EmbeddingEngine interface shape
// (internal/embedding/engine.go), narrowed to the two methods spec.md
// §4.3 actually requires: a fixed dimensionality and a deterministic
// single-text embed.
type Embedder interface {
	Dims() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one ranked hit from a VectorIndex search.
type Result struct {
	SkillID string
	Cosine  float64
}

// HashEmbedder is the default, deterministic, offline embedder: a
// token-hashed projection into DefaultDims dimensions. Same input
// always produces an identical vector, satisfying spec.md §4.3's
// determinism requirement without any network dependency.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder constructs the default embedder. dims defaults to
// DefaultDims when 0.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDims
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Dims() int { return h.dims }

// Embed hashes every token of text into a bucket of the output vector,
// sign-weighted by a second hash so opposite tokens can cancel, then
// unit-normalizes the result.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		bucket := fnvHash(tok) % uint32(h.dims)
		sign := float32(1)
		if fnvHash("sign:"+tok)%2 == 0 {
			sign = -1
		}
		vec[bucket] += sign
	}
	normalize(vec)
	return vec, nil
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func normalize(vec []float32) {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity computes the cosine similarity of two vectors of
// equal length, grounded on the teacher's embedding.CosineSimilarity.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New("vector: dimension mismatch")
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// entry is one stored vector, keyed by content hash so re-embedding an
// unchanged skill is skipped on reload.
type entry struct {
	vector      []float32
	contentHash string
}

// FlatIndex is the default VectorIndex: an in-memory map from skill id
// to vector, searched by brute-force cosine similarity, persisted to a
// single file keyed by content hash (spec.md §4.3). Vectors are stored
// as given and are not normalized by the index; Search divides by both
// magnitudes, so scale does not affect ranking. The file is not
// appended to: SaveTo truncates and rewrites it whole.
type FlatIndex struct {
	mu   sync.RWMutex
	dims int
	data map[string]entry
	log  *logging.Logger
}

// NewFlatIndex constructs an empty flat index for vectors of the given
// dimensionality.
func NewFlatIndex(dims int) *FlatIndex {
	return &FlatIndex{dims: dims, data: make(map[string]entry), log: logging.Get(logging.CategoryIndex)}
}

// Upsert stores vector for skillID together with contentHash,
// replacing any existing entry for skillID.
func (idx *FlatIndex) Upsert(skillID, contentHash string, vec []float32) error {
	if len(vec) != idx.dims {
		return mserr.New(mserr.KindValidation, "vector dimension mismatch")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.data[skillID] = entry{vector: vec, contentHash: contentHash}
	return nil
}

// ContentHash returns the content hash the index has on file for
// skillID, and whether an entry exists at all — callers use this to
// decide whether re-embedding is necessary.
func (idx *FlatIndex) ContentHash(skillID string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.data[skillID]
	if !ok {
		return "", false
	}
	return e.contentHash, true
}

// Remove drops skillID's vector from the index.
func (idx *FlatIndex) Remove(skillID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.data, skillID)
}

// Search ranks every indexed vector against query by cosine similarity,
// returning the top limit results descending, tie-broken by ascending
// skill id.
func (idx *FlatIndex) Search(query []float32, limit int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]Result, 0, len(idx.data))
	for id, e := range idx.data {
		sim, err := CosineSimilarity(query, e.vector)
		if err != nil {
			continue
		}
		results = append(results, Result{SkillID: id, Cosine: sim})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Cosine != results[j].Cosine {
			return results[i].Cosine > results[j].Cosine
		}
		return results[i].SkillID < results[j].SkillID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FileName is the persisted vector cache's name within <data_root>/caches,
// per spec.md §6.
const FileName = "embeddings.bin"

// record is the on-disk row format: a fixed 12-byte header (id length,
// hash length, vector length) followed by skillID bytes, the content
// hash string, and dims*4 bytes of little-endian float32 vector data. Later records for
// the same skill id supersede earlier ones on load.
func encodeRecord(skillID, contentHash string, vec []float32) []byte {
	var buf []byte
	idBytes := []byte(skillID)
	hashBytes := []byte(contentHash)

	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(idBytes)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(hashBytes)))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(vec)))

	buf = append(buf, header...)
	buf = append(buf, idBytes...)
	buf = append(buf, hashBytes...)
	for _, f := range vec {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		buf = append(buf, b[:]...)
	}
	return buf
}

// SaveTo writes every entry to path, truncating and rewriting the
// whole file (simplest correct persistence; the cache is rebuilt from
// the archive on corruption anyway, per spec.md §4.2's sibling rule
// for the lexical index).
func (idx *FlatIndex) SaveTo(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var buf []byte
	for id, e := range idx.data {
		buf = append(buf, encodeRecord(id, e.contentHash, e.vector)...)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to persist vector cache", err)
	}
	return nil
}

// LoadFrom replaces the index's contents with the records in path. A
// missing file is not an error: it means no vectors have been
// persisted yet.
func (idx *FlatIndex) LoadFrom(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return mserr.Wrap(mserr.KindIO, "failed to read vector cache", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.data = make(map[string]entry)

	offset := 0
	for offset+12 <= len(data) {
		idLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		hashLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		vecLen := int(binary.LittleEndian.Uint32(data[offset+8 : offset+12]))
		offset += 12

		if offset+idLen+hashLen+vecLen*4 > len(data) {
			idx.log.Warn("vector cache truncated; stopping load early")
			break
		}
		id := string(data[offset : offset+idLen])
		offset += idLen
		contentHash := string(data[offset : offset+hashLen])
		offset += hashLen

		vec := make([]float32, vecLen)
		for i := 0; i < vecLen; i++ {
			bits := binary.LittleEndian.Uint32(data[offset : offset+4])
			vec[i] = math.Float32frombits(bits)
			offset += 4
		}
		idx.data[id] = entry{vector: vec, contentHash: contentHash}
	}
	return nil
}

// Len reports how many vectors are currently indexed.
func (idx *FlatIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.data)
}
