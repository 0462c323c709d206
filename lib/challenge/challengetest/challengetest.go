// Package challengetest has helpers for testing challenge protocols.
package challengetest

import (
	"sync"
	"testing"
	"time"

	"github.com/TecharoHQ/botcha/lib/challenge"
	"github.com/TecharoHQ/botcha/lib/store/memory"
	"github.com/google/uuid"
)

// New returns a bare challenge of the given kind issued now.
func New(t *testing.T, kind challenge.Kind) *challenge.Challenge {
	t.Helper()

	id := uuid.Must(uuid.NewV7())

	return &challenge.Challenge{
		ID:       id.String(),
		Kind:     kind,
		IssuedAt: time.Now(),
	}
}

// Clock is a manually advanced clock.
type Clock struct {
	lock sync.Mutex
	now  time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

// Store returns a challenge store on a fresh in-memory backend driven by clock.
func Store(t *testing.T, clock *Clock) *challenge.Store {
	t.Helper()

	return challenge.NewStore(memory.New(), challenge.StoreOptions{
		Clock: clock.Now,
	})
}
