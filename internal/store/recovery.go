package store

import (
	"encoding/json"
	"os"
	"time"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// Severity is a recovery issue's severity, spec.md §4.1.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Issue is one finding from a recovery pass.
type Issue struct {
	Severity        Severity `json:"severity"`
	Mode            string   `json:"mode"`
	Description     string   `json:"description"`
	AutoRecoverable bool     `json:"auto_recoverable"`
	SuggestedFix    string   `json:"suggested_fix"`
}

// RecoveryReport summarizes a recovery pass, spec.md §4.1.
type RecoveryReport struct {
	Issues           []Issue
	RolledBack       int
	Completed        int
	OrphanedFiles    int
	CacheInvalidated bool
}

// HasCritical reports whether the report contains any critical issue.
func (r RecoveryReport) HasCritical() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// orphanGrace is how long a staging blob may sit unreferenced before
// it becomes an orphan-cleanup candidate, per spec.md §4.1.
const orphanGrace = 1 * time.Hour

// RecoveryManager inspects the store at startup, classifying every
// open tx_log row by phase and driving roll-forward/roll-back.
type RecoveryManager struct {
	store *Store
	log   *logging.Logger
}

func newRecoveryManager(s *Store) *RecoveryManager {
	return &RecoveryManager{store: s, log: logging.Get(logging.CategoryRecovery)}
}

// Recover classifies every open tx_log row and the archive's staging
// area, applying the deterministic action table from spec.md §4.1. If
// autoRecover is false, recoverable issues are reported but not acted
// on (except those with no visible side effect, like closing a
// PUBLISH-phase log entry).
func (rm *RecoveryManager) Recover(autoRecover bool) (RecoveryReport, error) {
	timer := logging.StartTimer(logging.CategoryRecovery, "Recover")
	defer timer.Stop()

	var report RecoveryReport

	rows, err := rm.store.db.Query(
		`SELECT id, entity_type, entity_id, phase, intent_json, started_at FROM tx_log WHERE completed_at IS NULL`,
	)
	if err != nil {
		return report, mserr.Wrap(mserr.KindIO, "failed to scan open transactions", err)
	}
	defer rows.Close()

	type openTx struct {
		id         int64
		entityType string
		entityID   string
		phase      string
		intentJSON string
		startedAt  string
	}
	var openTxs []openTx
	for rows.Next() {
		var t openTx
		if err := rows.Scan(&t.id, &t.entityType, &t.entityID, &t.phase, &t.intentJSON, &t.startedAt); err != nil {
			return report, mserr.Wrap(mserr.KindIO, "failed to read open transaction row", err)
		}
		openTxs = append(openTxs, t)
	}

	for _, t := range openTxs {
		var in intent
		_ = json.Unmarshal([]byte(t.intentJSON), &in)

		switch Phase(t.phase) {
		case PhasePrepare:
			// Crash between PREPARE and WRITE: DB untouched, staging
			// blob orphaned. Recovery deletes the staging blob.
			if autoRecover && in.ContentHash != "" {
				_ = rm.store.archive.DiscardStaging(in.ContentHash)
				rm.closeTx(t.id)
				report.RolledBack++
			}
			report.Issues = append(report.Issues, Issue{
				Severity: SeverityMinor, Mode: "prepare_orphan",
				Description:     "transaction crashed before WRITE; staging blob discarded",
				AutoRecoverable: true,
				SuggestedFix:    "delete orphaned staging blob",
			})

		case PhaseWrite:
			// Crash between WRITE and PUBLISH: DB references a hash
			// whose blob may not yet be published. Roll forward if the
			// staging blob is still present (intent carries the path,
			// per spec.md §4.1); otherwise roll back the DB row.
			if in.ContentHash != "" && !rm.store.archive.Has(in.ContentHash) {
				if stagingExists(rm.store.archive, in.ContentHash) {
					if autoRecover {
						_ = rm.store.archive.Publish(in.ContentHash)
						rm.closeTx(t.id)
						report.Completed++
					}
					report.Issues = append(report.Issues, Issue{
						Severity: SeverityMajor, Mode: "write_publish_gap",
						Description:     "transaction crashed after WRITE; rolled forward by publishing staged blob",
						AutoRecoverable: true,
						SuggestedFix:    "publish staged blob",
					})
				} else {
					if autoRecover {
						rm.rollbackSkillRow(t.entityID)
						rm.closeTx(t.id)
						report.RolledBack++
					}
					report.Issues = append(report.Issues, Issue{
						Severity: SeverityCritical, Mode: "write_publish_gap",
						Description:     "transaction crashed after WRITE with no staged blob; metadata row has no backing content",
						AutoRecoverable: autoRecover,
						SuggestedFix:    "delete the orphaned metadata row",
					})
				}
			} else {
				rm.closeTx(t.id)
				report.Completed++
			}

		case PhasePublish:
			// Both stores consistent; recovery simply closes the entry.
			rm.closeTx(t.id)
			report.Completed++

		default:
			rm.closeTx(t.id)
		}
	}

	orphans, err := rm.scanOrphanBlobs()
	if err != nil {
		return report, err
	}
	report.OrphanedFiles = orphans
	if orphans > 0 {
		report.Issues = append(report.Issues, Issue{
			Severity: SeverityMinor, Mode: "orphan_blob",
			Description:     "blobs unreferenced by any skill row, outside the orphan-grace window",
			AutoRecoverable: false,
			SuggestedFix:    "run archive garbage collection",
		})
	}

	report.CacheInvalidated = report.RolledBack > 0 || report.Completed > 0
	return report, nil
}

func (rm *RecoveryManager) closeTx(txID int64) {
	_, _ = rm.store.db.Exec(
		`UPDATE tx_log SET phase = ?, completed_at = ? WHERE id = ?`,
		string(PhaseCommit), time.Now().UTC().Format(time.RFC3339), txID,
	)
}

func (rm *RecoveryManager) rollbackSkillRow(skillID string) {
	_, _ = rm.store.db.Exec(`DELETE FROM skills WHERE id = ?`, skillID)
}

func stagingExists(a *Archive, hash string) bool {
	hashes, err := a.ListStaging()
	if err != nil {
		return false
	}
	for _, h := range hashes {
		if h == hash {
			return true
		}
	}
	return false
}

// scanOrphanBlobs counts published blobs referenced by no skill row
// and older than orphanGrace.
func (rm *RecoveryManager) scanOrphanBlobs() (int, error) {
	blobs, err := rm.store.archive.ListBlobs()
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]struct{})
	rows, err := rm.store.db.Query(`SELECT content_hash FROM skills`)
	if err != nil {
		return 0, mserr.Wrap(mserr.KindIO, "failed to scan referenced hashes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err == nil {
			referenced[h] = struct{}{}
		}
	}

	cutoff := time.Now().Add(-orphanGrace)
	count := 0
	for _, h := range blobs {
		if _, ok := referenced[h]; ok {
			continue
		}
		info, err := os.Stat(rm.store.archive.BlobPath(h))
		if err != nil || info.ModTime().After(cutoff) {
			// Too young to call an orphan: it may be a blob shared by a
			// publish still in flight on another PREPARE for the same
			// content hash.
			continue
		}
		count++
	}
	return count, nil
}

// IntegrityReport is the result of an on-demand integrity check.
type IntegrityReport struct {
	MissingBlobs []string
	DBHealthy    bool
}

// CheckIntegrity runs SQLite's native integrity check and scans the
// archive for blobs referenced by a skill row but absent on disk.
func (s *Store) CheckIntegrity() (IntegrityReport, error) {
	var report IntegrityReport

	var result string
	if err := s.db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return report, mserr.Wrap(mserr.KindIO, "integrity_check query failed", err)
	}
	report.DBHealthy = result == "ok"

	rows, err := s.db.Query(`SELECT content_hash FROM skills`)
	if err != nil {
		return report, mserr.Wrap(mserr.KindIO, "failed to scan content hashes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			continue
		}
		if !s.archive.Has(hash) {
			report.MissingBlobs = append(report.MissingBlobs, hash)
		}
	}
	return report, nil
}
