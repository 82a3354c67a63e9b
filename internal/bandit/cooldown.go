package bandit

import (
	"sync"
	"time"
)

// DefaultCooldownTTL is the default re-suggestion suppression window,
// per spec.md §4.9.
const DefaultCooldownTTL = 300 * time.Second

// CooldownState is the result of a one-step active/expired cooldown
// check, per spec.md §4.9.
type CooldownState string

const (
	CooldownActive  CooldownState = "active"
	CooldownExpired CooldownState = "expired"
)

// Cooldown suppresses re-suggesting the same (context fingerprint,
// skill id) pair within a TTL window.
type Cooldown struct {
	mu      sync.Mutex
	ttl     time.Duration
	expires map[cooldownKey]time.Time
}

type cooldownKey struct {
	contextHash string
	skillID     string
}

// NewCooldown constructs a Cooldown with the given TTL. A zero TTL
// falls back to DefaultCooldownTTL.
func NewCooldown(ttl time.Duration) *Cooldown {
	if ttl <= 0 {
		ttl = DefaultCooldownTTL
	}
	return &Cooldown{ttl: ttl, expires: make(map[cooldownKey]time.Time)}
}

// Start begins (or restarts) the cooldown window for (contextHash,
// skillID) at the given time.
func (c *Cooldown) Start(contextHash, skillID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires[cooldownKey{contextHash, skillID}] = at.Add(c.ttl)
}

// Check reports whether (contextHash, skillID) is still within its
// cooldown window at the given time — a one-step active/expired check,
// per spec.md §4.9. An entry that has never been started is expired.
func (c *Cooldown) Check(contextHash, skillID string, at time.Time) CooldownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, ok := c.expires[cooldownKey{contextHash, skillID}]
	if !ok || at.After(expiry) || at.Equal(expiry) {
		return CooldownExpired
	}
	return CooldownActive
}
