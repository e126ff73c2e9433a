package service

import (
	"sync"
	"time"

	"github.com/parserhub/hub-server-go/internal/audit"
)

type cooldownKey struct {
	userID int64
	action string
}

// CooldownLimiter is a per-(user, action) debounce. Entries live only in
// memory; a restart clears them, which is acceptable for cooldowns in the
// low seconds.
type CooldownLimiter struct {
	mu   sync.Mutex
	last map[cooldownKey]time.Time
	now  func() time.Time
}

func NewCooldownLimiter() *CooldownLimiter {
	return &CooldownLimiter{
		last: make(map[cooldownKey]time.Time),
		now:  time.Now,
	}
}

// Allow records the attempt and reports whether it falls outside the
// cooldown window since the previous one. A denied attempt does not reset
// the window.
func (c *CooldownLimiter) Allow(userID int64, action string, cooldown time.Duration) bool {
	key := cooldownKey{userID: userID, action: action}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.last[key]; ok && now.Sub(prev) < cooldown {
		audit.Log(audit.Event{
			Type:    audit.EventCooldownTripped,
			UserID:  userID,
			Details: map[string]any{"action": action},
		})
		return false
	}
	c.last[key] = now
	return true
}

// Prune drops entries older than retention; the janitor calls this so the
// map does not grow with every user who ever touched the API.
func (c *CooldownLimiter) Prune(retention time.Duration) int {
	cutoff := c.now().Add(-retention)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, at := range c.last {
		if at.Before(cutoff) {
			delete(c.last, key)
			removed++
		}
	}
	return removed
}

// Size reports the number of tracked entries.
func (c *CooldownLimiter) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
