package bandit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// InteractionType is a fine-grained interaction with a loaded skill,
// ported from original_source/src/suggestions/tracking.rs's
// InteractionType.
type InteractionType string

const (
	InteractionContentViewed       InteractionType = "content_viewed"
	InteractionRuleFollowed        InteractionType = "rule_followed"
	InteractionExampleUsed         InteractionType = "example_used"
	InteractionChecklistProgressed InteractionType = "checklist_progressed"
	InteractionSearched            InteractionType = "searched"
)

// skillSession is one skill's load/unload/interaction history within a
// session.
type skillSession struct {
	skillID      string
	loadedAt     time.Time
	unloadedAt   *time.Time
	interactions int
}

// SessionTracker monitors skill load/unload events during one session
// to derive implicit usefulness feedback, ported from tracking.rs's
// SessionTracker.
type SessionTracker struct {
	mu        sync.Mutex
	SessionID string
	StartedAt time.Time
	loaded    map[string]*skillSession
}

// NewSessionTracker starts a session with a freshly generated id.
func NewSessionTracker() *SessionTracker {
	return NewSessionTrackerWithID(uuid.NewString())
}

// NewSessionTrackerWithID starts a session with a caller-supplied id.
func NewSessionTrackerWithID(sessionID string) *SessionTracker {
	return &SessionTracker{
		SessionID: sessionID,
		StartedAt: time.Now(),
		loaded:    make(map[string]*skillSession),
	}
}

// OnSkillLoad records that skillID was loaded at the current time.
func (t *SessionTracker) OnSkillLoad(skillID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaded[skillID] = &skillSession{skillID: skillID, loadedAt: time.Now()}
}

// OnSkillUnload closes skillID's session entry and returns the
// implicit feedback its load/interaction pattern implies. Returns
// false if skillID was never loaded.
func (t *SessionTracker) OnSkillUnload(skillID string) (Feedback, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.loaded[skillID]
	if !ok {
		return Feedback{}, false
	}
	now := time.Now()
	session.unloadedAt = &now
	return computeImplicitFeedback(session, now), true
}

// RecordInteraction logs an interaction with a currently loaded skill;
// a no-op if the skill isn't loaded.
func (t *SessionTracker) RecordInteraction(skillID string, _ InteractionType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if session, ok := t.loaded[skillID]; ok {
		session.interactions++
	}
}

// IsSkillLoaded reports whether skillID is currently loaded (loaded
// and not yet unloaded).
func (t *SessionTracker) IsSkillLoaded(skillID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.loaded[skillID]
	return ok && session.unloadedAt == nil
}

// SkillLoadDurationMinutes returns how long skillID has been (or was)
// loaded, in whole minutes.
func (t *SessionTracker) SkillLoadDurationMinutes(skillID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.loaded[skillID]
	if !ok {
		return 0, false
	}
	end := time.Now()
	if session.unloadedAt != nil {
		end = *session.unloadedAt
	}
	minutes := int(end.Sub(session.loadedAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return minutes, true
}

// EndSession closes every still-loaded skill and returns derived
// feedback for all skills loaded during the session.
func (t *SessionTracker) EndSession() map[string]Feedback {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	out := make(map[string]Feedback, len(t.loaded))
	for id, session := range t.loaded {
		if session.unloadedAt == nil {
			session.unloadedAt = &now
		}
		out[id] = computeImplicitFeedback(session, now)
	}
	return out
}

// Stats summarizes the session's skill-load activity.
type SessionStats struct {
	SessionID         string
	TotalSkillsLoaded int
	CurrentlyLoaded   int
	TotalInteractions int
}

// Stats reports the session's load/interaction counters.
func (t *SessionTracker) Stats() SessionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := SessionStats{SessionID: t.SessionID, TotalSkillsLoaded: len(t.loaded)}
	for _, session := range t.loaded {
		if session.unloadedAt == nil {
			stats.CurrentlyLoaded++
		}
		stats.TotalInteractions += session.interactions
	}
	return stats
}

func computeImplicitFeedback(session *skillSession, end time.Time) Feedback {
	minutes := int(end.Sub(session.loadedAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	switch {
	case minutes < 1:
		return Feedback{Kind: FeedbackUnloadedQuickly}
	case session.interactions == 0:
		return Feedback{Kind: FeedbackLoadedOnly}
	default:
		return Feedback{Kind: FeedbackUsedDuration, Minutes: minutes}
	}
}

// SuggestionOutcome is what happened to a shown suggestion, ported
// from tracking.rs's SuggestionOutcome.
type SuggestionOutcome string

const (
	OutcomePending  SuggestionOutcome = "pending"
	OutcomeSelected SuggestionOutcome = "selected"
	OutcomeIgnored  SuggestionOutcome = "ignored"
	OutcomeHidden   SuggestionOutcome = "hidden"
)

// SuggestionRecord is one suggestion shown to the user, with the
// context features that produced it (so the collector can feed the
// same vector back into the bandit's Update).
type SuggestionRecord struct {
	SkillID  string
	ShownAt  time.Time
	Features ContextFeatures
	Position int
	Outcome  SuggestionOutcome
}

// SuggestionTracker tracks suggestions shown to the user for feedback
// collection, ported from tracking.rs's SuggestionTracker.
type SuggestionTracker struct {
	mu    sync.Mutex
	shown map[string]*SuggestionRecord
}

// NewSuggestionTracker constructs an empty tracker.
func NewSuggestionTracker() *SuggestionTracker {
	return &SuggestionTracker{shown: make(map[string]*SuggestionRecord)}
}

// RecordSuggestions records that skillIDs were shown, in order, with
// the feature vector that produced them. A skill already pending is
// left untouched rather than re-recorded.
func (t *SuggestionTracker) RecordSuggestions(skillIDs []string, features ContextFeatures) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for position, id := range skillIDs {
		if existing, ok := t.shown[id]; ok && existing.Outcome == OutcomePending {
			continue
		}
		t.shown[id] = &SuggestionRecord{
			SkillID:  id,
			ShownAt:  now,
			Features: features,
			Position: position,
			Outcome:  OutcomePending,
		}
	}
}

// OnSuggestionSelected marks a pending suggestion as selected.
func (t *SuggestionTracker) OnSuggestionSelected(skillID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.shown[skillID]; ok {
		r.Outcome = OutcomeSelected
	}
}

// OnSuggestionHidden marks a pending suggestion as explicitly hidden.
func (t *SuggestionTracker) OnSuggestionHidden(skillID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.shown[skillID]; ok {
		r.Outcome = OutcomeHidden
	}
}

// EndTracking marks every still-pending suggestion as ignored and
// returns feedback (with the original feature vector) for each.
func (t *SuggestionTracker) EndTracking() map[string]trackedFeedback {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]trackedFeedback)
	for id, r := range t.shown {
		if r.Outcome == OutcomePending {
			r.Outcome = OutcomeIgnored
			out[id] = trackedFeedback{Feedback: Feedback{Kind: FeedbackIgnored}, Features: r.Features}
		}
	}
	return out
}

// PendingSuggestions returns records that haven't been acted on yet.
func (t *SuggestionTracker) PendingSuggestions() []SuggestionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []SuggestionRecord
	for _, r := range t.shown {
		if r.Outcome == OutcomePending {
			out = append(out, *r)
		}
	}
	return out
}

// Clear drops all tracked suggestions.
func (t *SuggestionTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shown = make(map[string]*SuggestionRecord)
}

// trackedFeedback pairs a derived Feedback with the feature vector
// that was active when the corresponding suggestion/load happened, so
// the collector can hand both to Bandit.Update together.
type trackedFeedback struct {
	Feedback Feedback
	Features ContextFeatures
}

// FeedbackCollector unifies SessionTracker and SuggestionTracker behind
// a single entry point that funnels every derived feedback signal into
// a Bandit's Update, per spec.md §4.9.
type FeedbackCollector struct {
	Session     *SessionTracker
	Suggestions *SuggestionTracker
}

// NewFeedbackCollector constructs a collector with a fresh session id.
func NewFeedbackCollector() *FeedbackCollector {
	return &FeedbackCollector{Session: NewSessionTracker(), Suggestions: NewSuggestionTracker()}
}

// NewFeedbackCollectorWithSessionID constructs a collector with a
// caller-supplied session id.
func NewFeedbackCollectorWithSessionID(sessionID string) *FeedbackCollector {
	return &FeedbackCollector{Session: NewSessionTrackerWithID(sessionID), Suggestions: NewSuggestionTracker()}
}

// SessionID returns the underlying session tracker's id.
func (c *FeedbackCollector) SessionID() string { return c.Session.SessionID }

// OnSkillLoad records a load and, if skillID was a pending suggestion,
// marks it selected.
func (c *FeedbackCollector) OnSkillLoad(skillID string) {
	c.Session.OnSkillLoad(skillID)
	c.Suggestions.OnSuggestionSelected(skillID)
}

// OnSkillUnload closes the session entry for skillID and returns its
// derived feedback, if it was loaded.
func (c *FeedbackCollector) OnSkillUnload(skillID string) (Feedback, bool) {
	return c.Session.OnSkillUnload(skillID)
}

// OnSuggestionsShown records that skillIDs were suggested using
// features.
func (c *FeedbackCollector) OnSuggestionsShown(skillIDs []string, features ContextFeatures) {
	c.Suggestions.RecordSuggestions(skillIDs, features)
}

// EndSession collects feedback for every loaded skill and every
// ignored pending suggestion.
func (c *FeedbackCollector) EndSession() map[string]trackedFeedback {
	out := make(map[string]trackedFeedback)
	for id, fb := range c.Session.EndSession() {
		features := ContextFeatures{}
		if r, ok := c.Suggestions.shown[id]; ok {
			features = r.Features
		}
		out[id] = trackedFeedback{Feedback: fb, Features: features}
	}
	for id, tf := range c.Suggestions.EndTracking() {
		if _, exists := out[id]; !exists {
			out[id] = tf
		}
	}
	return out
}

// EndSessionAndUpdateBandit ends the session, collecting all feedback,
// and applies each to b.Update in turn.
func (c *FeedbackCollector) EndSessionAndUpdateBandit(b *Bandit) map[string]trackedFeedback {
	all := c.EndSession()
	for id, tf := range all {
		b.Update(id, tf.Features, tf.Feedback)
	}
	return all
}

// OnSkillUnloadAndUpdateBandit records an unload and immediately
// applies its derived feedback to b.Update, using features (the
// feature vector active when the skill was suggested or loaded).
func (c *FeedbackCollector) OnSkillUnloadAndUpdateBandit(skillID string, b *Bandit, features ContextFeatures) (Feedback, bool) {
	fb, ok := c.OnSkillUnload(skillID)
	if !ok {
		return Feedback{}, false
	}
	b.Update(skillID, features, fb)
	return fb, true
}
