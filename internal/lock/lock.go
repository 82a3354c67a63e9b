// Package lock provides the single global, cross-process mutation lock
// that guards every store write. Only one process may hold it at a
// time; readers never need it.
package lock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/logging"
	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// DefaultTimeout is how long Acquire retries before giving up.
const DefaultTimeout = 10 * time.Second

// FileName is the lock file's name within the data root.
const FileName = "ms.lock"

// Holder is the record written into the lock file while held, and the
// record surfaced on a mserr.KindLocked error when acquisition fails.
type Holder struct {
	PID      int       `json:"pid"`
	Hostname string    `json:"hostname"`
	Acquired time.Time `json:"acquired"`
}

// Lock wraps an advisory filesystem lock with a JSON holder record, so a
// blocked acquirer can report who currently owns it.
type Lock struct {
	path string
	fl   *flock.Flock
	log  *logging.Logger
}

// New builds a Lock for the given data root without acquiring it.
func New(dataRoot string) *Lock {
	path := filepath.Join(dataRoot, FileName)
	return &Lock{
		path: path,
		fl:   flock.New(path),
		log:  logging.Get(logging.CategoryLock),
	}
}

// Acquire blocks (with bounded exponential backoff) until the lock is
// obtained, the context is cancelled, or timeout elapses, whichever
// comes first. On timeout it returns a mserr.KindLocked error carrying
// the current holder record, if it could be read.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(250*time.Millisecond),
		backoff.WithMaxElapsedTime(timeout),
	), ctx)

	operation := func() error {
		ok, err := l.fl.TryLock()
		if err != nil {
			return backoff.Permanent(mserr.Wrap(mserr.KindIO, "lock file access failed", err))
		}
		if !ok {
			return errNotAcquired
		}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		if err == errNotAcquired || err == context.DeadlineExceeded {
			return l.lockedError()
		}
		return err
	}

	holder := Holder{PID: os.Getpid(), Hostname: hostname(), Acquired: time.Now().UTC()}
	data, _ := json.Marshal(holder)
	if writeErr := os.WriteFile(l.path, data, 0o644); writeErr != nil {
		_ = l.fl.Unlock()
		return mserr.Wrap(mserr.KindIO, "failed to write lock holder record", writeErr)
	}
	l.log.Debug("lock acquired", "pid", holder.PID, "path", l.path)
	return nil
}

// Release gives up the lock. The holder record is left in place; the
// next acquirer overwrites it.
func (l *Lock) Release() error {
	l.log.Debug("lock released", "path", l.path)
	return l.fl.Unlock()
}

func (l *Lock) lockedError() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return mserr.NewLocked(mserr.LockedError{})
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return mserr.NewLocked(mserr.LockedError{})
	}
	return mserr.NewLocked(mserr.LockedError{
		PID:      h.PID,
		Hostname: h.Hostname,
		Acquired: h.Acquired.Format(time.RFC3339),
	})
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

var errNotAcquired = mserr.New(mserr.KindLocked, "lock held by another process")
