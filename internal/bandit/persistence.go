package bandit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"time"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// armBlob is the gob-encoded payload stored in bandit_params.params_blob,
// mirroring internal/store/learned_store.go's pattern of persisting
// learned state as a single blob column (there an `embedding BLOB`
// written by a hand-rolled binary encoder) rather than one row per
// feature; here it's a small fixed-size parameter struct instead, so
// gob replaces the teacher's hand-rolled binary.Write round trip.
type armBlob struct {
	Precision []float64
	Weighted  []float64
	PullCount int
	RewardSum float64
}

// Store persists a Bandit's per-arm parameters to the bandit_params
// table (schema defined in internal/store). It takes a *sql.DB
// directly — the same one Store.DB() returns — rather than depending
// on internal/store, avoiding an import cycle the same way
// internal/resolver's Loader interface does against internal/store.
type Store struct {
	db *sql.DB
}

// NewStore wraps db for bandit-parameter persistence.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveArm upserts skillID's current parameters.
func (s *Store) SaveArm(ctx context.Context, skillID string, b *Bandit) error {
	b.mu.Lock()
	arm, ok := b.arms[skillID]
	b.mu.Unlock()
	if !ok {
		return mserr.New(mserr.KindNotFound, "bandit: no such arm: "+skillID)
	}

	var buf bytes.Buffer
	blob := armBlob{Precision: arm.precision, Weighted: arm.weighted, PullCount: arm.pullCount, RewardSum: arm.rewardSum}
	if err := gob.NewEncoder(&buf).Encode(blob); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to encode bandit arm params", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bandit_params (skill_id, params_blob) VALUES (?, ?)
		ON CONFLICT(skill_id) DO UPDATE SET params_blob = excluded.params_blob
	`, skillID, buf.Bytes())
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to persist bandit arm params", err)
	}
	return nil
}

// LoadAll replaces b's in-memory arms with every persisted arm.
func (s *Store) LoadAll(ctx context.Context, b *Bandit) error {
	rows, err := s.db.QueryContext(ctx, `SELECT skill_id, params_blob FROM bandit_params`)
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to query bandit params", err)
	}
	defer rows.Close()

	loaded := make(map[string]*armParams)
	for rows.Next() {
		var skillID string
		var raw []byte
		if err := rows.Scan(&skillID, &raw); err != nil {
			return mserr.Wrap(mserr.KindIO, "failed to scan bandit params row", err)
		}
		var blob armBlob
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&blob); err != nil {
			return mserr.Wrap(mserr.KindIO, "failed to decode bandit arm params", err)
		}
		loaded[skillID] = &armParams{
			precision: blob.Precision,
			weighted:  blob.Weighted,
			pullCount: blob.PullCount,
			rewardSum: blob.RewardSum,
		}
	}
	if err := rows.Err(); err != nil {
		return mserr.Wrap(mserr.KindIO, "failed reading bandit params rows", err)
	}

	b.mu.Lock()
	b.arms = loaded
	b.mu.Unlock()
	return nil
}

// SaveCooldown upserts a single cooldown window's expiry.
func (s *Store) SaveCooldown(ctx context.Context, contextHash, skillID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestion_cooldowns (context_hash, skill_id, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(context_hash, skill_id) DO UPDATE SET expires_at = excluded.expires_at
	`, contextHash, skillID, expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to persist cooldown", err)
	}
	return nil
}

// RecordUserHistory bumps skillID's seen-count and last-seen timestamp
// in user_history, the signal ContextFeatures.HistoryFrequency/
// HistoryRecency are ultimately derived from.
func (s *Store) RecordUserHistory(ctx context.Context, skillID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_history (skill_id, last_seen, count) VALUES (?, ?, 1)
		ON CONFLICT(skill_id) DO UPDATE SET last_seen = excluded.last_seen, count = count + 1
	`, skillID, at.UTC().Format(time.RFC3339))
	if err != nil {
		return mserr.Wrap(mserr.KindIO, "failed to record user history", err)
	}
	return nil
}
