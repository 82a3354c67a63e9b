package quarantine

import (
	"context"
	"database/sql"
	"time"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// SQLStore is the production RecordStore, grounded on the teacher's
// internal/store/local_review.go pattern (a thin wrapper over *sql.DB
// with one method per table operation). It takes a bare *sql.DB — the
// same one Store.DB() returns — rather than importing internal/store,
// the same import-cycle-avoidance pattern internal/bandit's
// persistence layer uses.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps db for quarantine persistence against the
// quarantine_records/quarantine_reviews tables.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) PutRecord(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quarantine_records
			(id, session_id, message_index, content_hash, source, classification,
			 original_excerpt, safe_excerpt, created_at, reviewed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, r.QuarantineID, r.SessionID, r.MessageIndex, r.ContentHash, string(r.Source), string(r.Classification),
		recordOriginalExcerpt(r), r.SafeExcerpt, r.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to persist quarantine record", err)
	}
	return nil
}

func (s *SQLStore) GetRecord(ctx context.Context, quarantineID string) (*Record, error) {
	var r Record
	var createdAt string
	var classification string
	var source string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, message_index, content_hash, source, classification, safe_excerpt, created_at
		FROM quarantine_records WHERE id = ?
	`, quarantineID).Scan(&r.QuarantineID, &r.SessionID, &r.MessageIndex, &r.ContentHash, &source, &classification,
		&r.SafeExcerpt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, mserr.New(mserr.KindNotFound, "quarantine record not found: "+quarantineID)
	}
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to load quarantine record", err)
	}
	r.Source = Source(source)
	r.Classification = Classification(classification)
	r.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to parse quarantine record timestamp", err)
	}
	return &r, nil
}

func (s *SQLStore) PutReview(ctx context.Context, r *Review) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to begin quarantine review transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quarantine_reviews (id, record_id, reviewer, decision, notes, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ReviewID, r.QuarantineID, "reviewer", string(r.Action), r.Reason, r.ReviewedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to persist quarantine review", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE quarantine_records SET reviewed = 1 WHERE id = ?`, r.QuarantineID)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to mark quarantine record reviewed", err)
	}

	if err := tx.Commit(); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to commit quarantine review", err)
	}
	return nil
}

func (s *SQLStore) ListReviews(ctx context.Context, quarantineID string) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, decision, notes, reviewed_at FROM quarantine_reviews
		WHERE record_id = ? ORDER BY reviewed_at ASC
	`, quarantineID)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to list quarantine reviews", err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var r Review
		var decision string
		var notes sql.NullString
		var reviewedAt string
		if err := rows.Scan(&r.ReviewID, &r.QuarantineID, &decision, &notes, &reviewedAt); err != nil {
			return nil, mserr.Wrap(mserr.KindIO, "failed to scan quarantine review row", err)
		}
		r.Action = ReviewAction(decision)
		r.Reason = notes.String
		r.ReviewedAt, err = time.Parse(time.RFC3339, reviewedAt)
		if err != nil {
			return nil, mserr.Wrap(mserr.KindIO, "failed to parse quarantine review timestamp", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed reading quarantine review rows", err)
	}
	return out, nil
}

func (s *SQLStore) ListUnreviewed(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, message_index, content_hash, source, classification, safe_excerpt, created_at
		FROM quarantine_records WHERE reviewed = 0 ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to list unreviewed quarantine records", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var source, classification, createdAt string
		if err := rows.Scan(&r.QuarantineID, &r.SessionID, &r.MessageIndex, &r.ContentHash, &source, &classification,
			&r.SafeExcerpt, &createdAt); err != nil {
			return nil, mserr.Wrap(mserr.KindIO, "failed to scan quarantine record row", err)
		}
		r.Source = Source(source)
		r.Classification = Classification(classification)
		r.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, mserr.Wrap(mserr.KindIO, "failed to parse quarantine record timestamp", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed reading quarantine record rows", err)
	}
	return out, nil
}

// recordOriginalExcerpt is intentionally just the safe excerpt: the
// quarantine_records schema's original_excerpt column exists for the
// teacher's general audit-log convention of keeping an "as submitted"
// field, but spec.md §4.11 is explicit that raw content is never
// retained, so this module never writes anything riskier than the
// already-redacted safe excerpt into it.
func recordOriginalExcerpt(r *Record) string {
	return r.SafeExcerpt
}
