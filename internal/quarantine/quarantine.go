// Package quarantine implements the injection-defense quarantine store
// described in spec.md §4.11: an AcipEngine-style analysis hook,
// quarantine records for content judged disallowed, and reviews
// attached to those records. Replay always returns the safe excerpt,
// never the raw content.
package quarantine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// Source identifies where analyzed text originated, per spec.md §4.11.
type Source string

const (
	SourceUser       Source = "user"
	SourceAssistant  Source = "assistant"
	SourceToolOutput Source = "tool_output"
	SourceFile       Source = "file"
)

// Classification is AcipEngine's verdict on analyzed content. The spec
// names only the Disallowed case explicitly (the one that triggers
// quarantine); Safe and Suspicious round out the contract so a caller
// has something to do with content that isn't quarantined.
type Classification string

const (
	ClassificationSafe       Classification = "safe"
	ClassificationSuspicious Classification = "suspicious"
	ClassificationDisallowed Classification = "disallowed"
)

// AcipAnalysis is the result of analyzing one piece of text, per
// spec.md §4.11.
type AcipAnalysis struct {
	Classification Classification
	SafeExcerpt    string
	AuditTag       string // optional; empty when the engine has nothing to tag
}

// AcipEngine is the narrow analysis contract spec.md §4.11 specifies:
// the actual classifier (heuristic, ML model, or remote service) is an
// external collaborator, out of scope for this module — callers supply
// their own implementation.
type AcipEngine interface {
	Analyze(ctx context.Context, text string, source Source) (AcipAnalysis, error)
}

// ReviewAction is a human reviewer's disposition of a quarantine
// record, per spec.md §4.11.
type ReviewAction string

const (
	ActionConfirmInjection ReviewAction = "confirm_injection"
	ActionFalsePositive    ReviewAction = "false_positive"
)

// Record is a persisted quarantine entry: a classification of content
// judged disallowed, with only a safe excerpt retained — raw content
// is never stored, per spec.md §4.11.
type Record struct {
	QuarantineID   string
	SessionID      string
	MessageIndex   int
	ContentHash    string
	Source         Source
	Classification Classification
	SafeExcerpt    string
	CreatedAt      time.Time
}

// Review is a human disposition attached to a Record.
type Review struct {
	ReviewID     string
	QuarantineID string
	Action       ReviewAction
	Reason       string
	ReviewedAt   time.Time
}

// Store is the quarantine store: it runs AcipEngine.Analyze over
// submitted content and, on Disallowed, persists a Record (and later,
// Reviews against it) via its RecordStore.
type Store struct {
	engine  AcipEngine
	records RecordStore
	log     *logging.Logger
}

// New constructs a Store backed by engine for analysis and records for
// persistence.
func New(engine AcipEngine, records RecordStore) *Store {
	return &Store{engine: engine, records: records, log: logging.Get(logging.CategoryQuarantine)}
}

// Submit analyzes text and, if AcipEngine classifies it Disallowed,
// persists a quarantine record for it. It always returns the analysis
// so the caller can act on Safe/Suspicious content too; record is
// non-nil only when one was persisted.
func (s *Store) Submit(ctx context.Context, sessionID string, messageIndex int, text string, source Source) (AcipAnalysis, *Record, error) {
	analysis, err := s.engine.Analyze(ctx, text, source)
	if err != nil {
		return AcipAnalysis{}, nil, mserr.Wrap(mserr.KindIO, "quarantine analysis failed", err)
	}
	if analysis.Classification != ClassificationDisallowed {
		return analysis, nil, nil
	}

	record := &Record{
		QuarantineID:   uuid.NewString(),
		SessionID:      sessionID,
		MessageIndex:   messageIndex,
		ContentHash:    contentHash(text),
		Source:         source,
		Classification: analysis.Classification,
		SafeExcerpt:    analysis.SafeExcerpt,
		CreatedAt:      time.Now(),
	}
	if err := s.records.PutRecord(ctx, record); err != nil {
		return analysis, nil, mserr.Wrap(mserr.KindIO, "failed to persist quarantine record", err)
	}
	s.log.Info("quarantined content",
		"session_id", sessionID, "message_index", messageIndex, "content_hash", record.ContentHash)
	return analysis, record, nil
}

// Replay returns only the safe excerpt for a quarantine record; raw
// content is never returned, per spec.md §4.11.
func (s *Store) Replay(ctx context.Context, quarantineID string) (string, error) {
	record, err := s.records.GetRecord(ctx, quarantineID)
	if err != nil {
		return "", err
	}
	return record.SafeExcerpt, nil
}

// AddReview attaches a human disposition to an existing quarantine
// record.
func (s *Store) AddReview(ctx context.Context, quarantineID string, action ReviewAction, reason string) (*Review, error) {
	if _, err := s.records.GetRecord(ctx, quarantineID); err != nil {
		return nil, err
	}
	review := &Review{
		ReviewID:     uuid.NewString(),
		QuarantineID: quarantineID,
		Action:       action,
		Reason:       reason,
		ReviewedAt:   time.Now(),
	}
	if err := s.records.PutReview(ctx, review); err != nil {
		return nil, mserr.Wrap(mserr.KindIO, "failed to persist quarantine review", err)
	}
	return review, nil
}

// RecordStore is the persistence contract a Store delegates to;
// SQLStore (persistence.go) is the production implementation against
// internal/store's quarantine_records/quarantine_reviews tables.
type RecordStore interface {
	PutRecord(ctx context.Context, r *Record) error
	GetRecord(ctx context.Context, quarantineID string) (*Record, error)
	PutReview(ctx context.Context, r *Review) error
	ListReviews(ctx context.Context, quarantineID string) ([]Review, error)
	ListUnreviewed(ctx context.Context) ([]Record, error)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
