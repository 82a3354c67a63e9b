package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/skill"
)

// Phase is a step in the two-phase commit protocol, spec.md §4.1.
type Phase string

const (
	PhasePrepare Phase = "PREPARE"
	PhaseWrite   Phase = "WRITE"
	PhasePublish Phase = "PUBLISH"
	PhaseCommit  Phase = "COMMIT"
)

// intent is the tx_log row's structured payload: everything recovery
// needs to classify and replay or unwind the transaction.
type intent struct {
	ContentHash string `json:"content_hash,omitempty"`
	StagingPath string `json:"staging_path,omitempty"`
	SkillID     string `json:"skill_id,omitempty"`
}

// Indexer is the derived-index side of a commit, per spec.md §4.2:
// "On commit, the Indexer updates the Lexical Index... and the Vector
// Index". Satisfied by *internal/indexer.Indexer; kept as an interface
// here so store has no import-time dependency on the index packages.
type Indexer interface {
	IndexSkill(ctx context.Context, sk *skill.Skill) error
	RemoveSkill(ctx context.Context, id string) error
}

// TxManager owns the tx_log table and drives every write through
// PREPARE → WRITE → PUBLISH → COMMIT, grounded on the teacher's
// timer/logging-wrapped method style (internal/store/local_core.go).
type TxManager struct {
	db      *sql.DB
	archive *Archive
	indexer Indexer
	log     *logging.Logger
}

func newTxManager(db *sql.DB, archive *Archive) *TxManager {
	return &TxManager{db: db, archive: archive, log: logging.Get(logging.CategoryStore)}
}

// SetIndexer attaches the derived-index wiring. Indexes are optional
// and rebuildable, so a nil or never-set indexer just means commits
// don't maintain search indexes (indexer.Indexer.Rebuild can
// regenerate them later).
func (tm *TxManager) SetIndexer(idx Indexer) {
	tm.indexer = idx
}

// PutSkill writes sk through the full two-phase-commit protocol:
// stages the canonical bytes, applies the relational change, publishes
// the blob, and closes the log entry. Idempotent by content hash: if
// an identical skill (by content hash) is already published, the blob
// is reused and only the metadata row is touched.
func (tm *TxManager) PutSkill(ctx context.Context, sk *skill.Skill) error {
	timer := logging.StartTimer(logging.CategoryStore, "PutSkill")
	defer timer.Stop()

	canonical, err := skill.CanonicalBytes(sk)
	if err != nil {
		return mserr.Wrap(mserr.KindValidation, "failed to canonicalize skill", err)
	}
	hash, err := skill.ContentHash(sk)
	if err != nil {
		return mserr.Wrap(mserr.KindValidation, "failed to hash skill", err)
	}
	sk.Source.ContentHash = hash

	// PREPARE: log intent, stage bytes.
	txID, err := tm.logPhase(ctx, "skill", sk.ID, PhasePrepare, intent{
		ContentHash: hash,
		StagingPath: tm.archive.StagingPath(hash),
		SkillID:     sk.ID,
	})
	if err != nil {
		return err
	}
	if err := tm.archive.Stage(hash, canonical); err != nil {
		return err
	}

	// WRITE: apply relational changes and advance the log entry in the
	// same DB transaction, per spec.md §4.1 step 2.
	dbTx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to begin write transaction", err)
	}
	if err := writeSkillRows(dbTx, sk); err != nil {
		dbTx.Rollback()
		return err
	}
	if err := tm.advancePhase(dbTx, txID, PhaseWrite); err != nil {
		dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to commit write transaction", err)
	}

	// PUBLISH: atomically promote the staged blob.
	if err := tm.archive.Publish(hash); err != nil {
		return err
	}
	if err := tm.setPhase(ctx, txID, PhasePublish, false); err != nil {
		return err
	}

	// COMMIT: close the log entry, kept for audit per spec.md §4.1 step 4.
	if err := tm.setPhase(ctx, txID, PhaseCommit, true); err != nil {
		return err
	}

	tm.log.Debug("skill committed", "id", sk.ID, "content_hash", hash)

	if tm.indexer != nil {
		if err := tm.indexer.IndexSkill(ctx, sk); err != nil {
			// Indexes are derived, rebuildable state (spec.md §4.2); a
			// failure here must not undo an already-published commit.
			tm.log.Warn("failed to update search indexes", "id", sk.ID, "error", err.Error())
		}
	}
	return nil
}

// DeleteSkill removes sk's metadata row and writes a tombstone. The
// blob is left in the archive: it may still be referenced by another
// skill sharing the same content hash, or by the orphan-grace window.
func (tm *TxManager) DeleteSkill(ctx context.Context, id string) error {
	timer := logging.StartTimer(logging.CategoryStore, "DeleteSkill")
	defer timer.Stop()

	txID, err := tm.logPhase(ctx, "skill_delete", id, PhasePrepare, intent{SkillID: id})
	if err != nil {
		return err
	}

	dbTx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to begin delete transaction", err)
	}

	var archivePath string
	err = dbTx.QueryRow(`SELECT content_hash FROM skills WHERE id = ?`, id).Scan(&archivePath)
	if err == sql.ErrNoRows {
		dbTx.Rollback()
		return mserr.New(mserr.KindSkillNotFound, "skill not found: "+id)
	}
	if err != nil {
		dbTx.Rollback()
		return mserr.Wrap(mserr.KindIO, "failed to look up skill for delete", err)
	}

	if _, err := dbTx.Exec(`DELETE FROM skills WHERE id = ?`, id); err != nil {
		dbTx.Rollback()
		return mserr.Wrap(mserr.KindIO, "failed to delete skill row", err)
	}
	if _, err := dbTx.Exec(
		`INSERT INTO tombstones (id, original_id, deleted_at, archive_path) VALUES (?, ?, ?, ?)`,
		fmt.Sprintf("tomb-%d", txID), id, time.Now().UTC().Format(time.RFC3339), archivePath,
	); err != nil {
		dbTx.Rollback()
		return mserr.Wrap(mserr.KindIO, "failed to write tombstone", err)
	}
	if err := tm.advancePhase(dbTx, txID, PhaseWrite); err != nil {
		dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to commit delete transaction", err)
	}

	if err := tm.setPhase(ctx, txID, PhaseCommit, true); err != nil {
		return err
	}

	if tm.indexer != nil {
		if err := tm.indexer.RemoveSkill(ctx, id); err != nil {
			tm.log.Warn("failed to remove skill from search indexes", "id", id, "error", err.Error())
		}
	}
	return nil
}

func writeSkillRows(dbTx *sql.Tx, sk *skill.Skill) error {
	metadataJSON, err := json.Marshal(sk.Metadata)
	if err != nil {
		return mserr.Wrap(mserr.KindValidation, "failed to marshal metadata", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	indexedAt := sk.IndexedAt
	if indexedAt.IsZero() {
		sk.IndexedAt, _ = time.Parse(time.RFC3339, now)
	}

	_, err = dbTx.Exec(`
		INSERT INTO skills (id, name, description, version, author, layer, source_path,
			git_remote, git_commit, content_hash, token_count, quality_score,
			indexed_at, modified_at, is_deprecated, deprecation_reason, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, version=excluded.version,
			author=excluded.author, layer=excluded.layer, source_path=excluded.source_path,
			git_remote=excluded.git_remote, git_commit=excluded.git_commit,
			content_hash=excluded.content_hash, token_count=excluded.token_count,
			quality_score=excluded.quality_score, modified_at=excluded.modified_at,
			is_deprecated=excluded.is_deprecated, deprecation_reason=excluded.deprecation_reason,
			metadata_json=excluded.metadata_json`,
		sk.ID, sk.Name, sk.Description, sk.Version, nullableString(sk.Author), int(sk.Layer),
		sk.Source.SourcePath, nullableString(sk.Source.GitRemote), nullableString(sk.Source.GitCommit),
		sk.Source.ContentHash, sk.TokenCount, sk.QualityScore,
		formatTime(sk.IndexedAt, now), now, boolToInt(sk.Deprecated), nullableString(sk.DeprecationReason),
		string(metadataJSON),
	)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to upsert skill row", err)
	}

	for _, table := range []string{"skill_tags", "skill_provides", "skill_requires", "skill_extends"} {
		if _, err := dbTx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, deleteKeyColumn(table)), sk.ID); err != nil {
			return mserr.Wrap(mserr.KindIO, "failed to clear "+table, err)
		}
	}

	for _, tag := range sk.Tags {
		if _, err := dbTx.Exec(`INSERT INTO skill_tags (skill_id, tag) VALUES (?, ?)`, sk.ID, tag); err != nil {
			return mserr.Wrap(mserr.KindIO, "failed to insert tag", err)
		}
	}
	for _, capability := range sk.Provides {
		if _, err := dbTx.Exec(`INSERT INTO skill_provides (skill_id, capability) VALUES (?, ?)`, sk.ID, capability); err != nil {
			return mserr.Wrap(mserr.KindIO, "failed to insert provides", err)
		}
	}
	for i, req := range sk.Requires {
		if _, err := dbTx.Exec(`INSERT INTO skill_requires (skill_id, capability_or_id, ordinal) VALUES (?, ?, ?)`, sk.ID, req, i); err != nil {
			return mserr.Wrap(mserr.KindIO, "failed to insert requires", err)
		}
	}
	if sk.Extends != nil {
		if _, err := dbTx.Exec(`INSERT INTO skill_extends (child_id, parent_id) VALUES (?, ?)`, sk.ID, *sk.Extends); err != nil {
			return mserr.Wrap(mserr.KindIO, "failed to insert extends", err)
		}
	}

	searchText := buildSearchText(sk)
	if _, err := dbTx.Exec(
		`INSERT INTO skills_fts (skill_id, search_text) VALUES (?, ?)
		 ON CONFLICT(skill_id) DO UPDATE SET search_text = excluded.search_text`,
		sk.ID, searchText,
	); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to update fts shadow row", err)
	}

	return nil
}

func buildSearchText(sk *skill.Skill) string {
	var b strings.Builder
	b.WriteString(sk.Name)
	b.WriteString(" ")
	b.WriteString(sk.Description)
	b.WriteString(" ")
	b.WriteString(strings.Join(sk.Tags, " "))
	b.WriteString(" ")
	for _, sec := range sk.Sections {
		for _, blk := range sec.Blocks {
			b.WriteString(blk.Content)
			b.WriteString(" ")
		}
	}
	return b.String()
}

func deleteKeyColumn(table string) string {
	switch table {
	case "skill_extends":
		return "child_id"
	default:
		return "skill_id"
	}
}

// logPhase inserts a new tx_log row at the given phase and mirrors it
// into the archive journal, returning the new row's id.
func (tm *TxManager) logPhase(ctx context.Context, entityType, entityID string, phase Phase, in intent) (int64, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return 0, mserr.Wrap(mserr.KindIO, "failed to marshal tx intent", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tm.db.ExecContext(ctx,
		`INSERT INTO tx_log (entity_type, entity_id, phase, intent_json, staging_path, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entityType, entityID, string(phase), string(data), in.StagingPath, now,
	)
	if err != nil {
		return 0, mserr.Wrap(mserr.KindIO, "failed to write tx_log row", err)
	}
	txID, err := res.LastInsertId()
	if err != nil {
		return 0, mserr.Wrap(mserr.KindIO, "failed to read tx_log row id", err)
	}
	tm.mirrorJournal(txID, entityType, entityID, phase)
	return txID, nil
}

// advancePhase updates a tx_log row's phase as part of an existing
// caller-managed DB transaction (used for the WRITE phase, which must
// land in the same transaction as the relational change).
func (tm *TxManager) advancePhase(dbTx *sql.Tx, txID int64, phase Phase) error {
	_, err := dbTx.Exec(`UPDATE tx_log SET phase = ? WHERE id = ?`, string(phase), txID)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to advance tx_log phase", err)
	}
	return nil
}

// setPhase updates a tx_log row's phase on its own, optionally setting
// completed_at (used for PUBLISH and COMMIT).
func (tm *TxManager) setPhase(ctx context.Context, txID int64, phase Phase, complete bool) error {
	var err error
	if complete {
		_, err = tm.db.ExecContext(ctx,
			`UPDATE tx_log SET phase = ?, completed_at = ? WHERE id = ?`,
			string(phase), time.Now().UTC().Format(time.RFC3339), txID)
	} else {
		_, err = tm.db.ExecContext(ctx, `UPDATE tx_log SET phase = ? WHERE id = ?`, string(phase), txID)
	}
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to set tx_log phase", err)
	}
	return nil
}

func (tm *TxManager) mirrorJournal(txID int64, entityType, entityID string, phase Phase) {
	line, err := json.Marshal(map[string]any{
		"tx_id":       txID,
		"entity_type": entityType,
		"entity_id":   entityID,
		"phase":       string(phase),
		"at":          time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	path := filepath.Join(tm.archive.JournalDir(), fmt.Sprintf("tx-%d.jsonl", txID))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time, fallback string) string {
	if t.IsZero() {
		return fallback
	}
	return t.UTC().Format(time.RFC3339)
}
