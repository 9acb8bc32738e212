package wallet

import (
	"sync"
	"time"
)

// SessionCache keeps the wallet password in memory for a bounded time so the
// wallet can unlock itself again after an auto-lock. It is never persisted.
type SessionCache struct {
	mu       sync.Mutex
	password []byte
	expires  time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionCache returns a cache holding passwords for ttl. A zero ttl disables it.
func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{ttl: ttl, now: time.Now}
}

// Put stores a copy of password
func (c *SessionCache) Put(password []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.password)
	c.password = nil
	if c.ttl <= 0 || len(password) == 0 {
		return
	}
	c.password = append([]byte(nil), password...)
	c.expires = c.now().Add(c.ttl)
}

// Get returns a copy of the cached password; the caller should clear it after use
func (c *SessionCache) Get() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.password == nil {
		return nil, false
	}
	if !c.now().Before(c.expires) {
		clear(c.password)
		c.password = nil
		return nil, false
	}
	return append([]byte(nil), c.password...), true
}

// Clear wipes the cached password
func (c *SessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.password)
	c.password = nil
}
