// Package keypool rotates upstream API credentials and parks rate-limited ones.
//
// A Pool hands out keys round-robin. A key reported as rate limited is skipped
// until its cooldown has elapsed; once every key is cooling the pool keeps
// rotating anyway so callers are never starved of a credential.
package keypool

import (
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultCooldown is how long a rate-limited key is skipped.
const DefaultCooldown = 60 * time.Second

// Pool is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	keys     []string
	cursor   int
	cooling  map[string]time.Time // key -> cooldown deadline
	cooldown time.Duration
	now      func() time.Time
}

// Option configures a Pool
type Option func(*Pool)

// WithCooldown overrides DefaultCooldown
func WithCooldown(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.cooldown = d
		}
	}
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a pool over keys. Blank keys are dropped.
func New(keys []string, opts ...Option) *Pool {
	p := &Pool{
		cooling:  make(map[string]time.Time),
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			p.keys = append(p.keys, k)
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next returns the next usable key. The second return is false only when the
// pool is empty.
func (p *Pool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.keys)
	if n == 0 {
		return "", false
	}

	now := p.now()
	start := p.cursor
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		key := p.keys[idx]
		if p.readyLocked(key, now) {
			p.cursor = (idx + 1) % n
			return key, true
		}
	}

	// All keys are cooling; rotate regardless.
	key := p.keys[start]
	p.cursor = (start + 1) % n
	log.WithField("keys", n).Warn("all API keys are rate limited, using next key anyway")
	return key, true
}

// readyLocked clears an expired cooldown as a side effect
func (p *Pool) readyLocked(key string, now time.Time) bool {
	until, ok := p.cooling[key]
	if !ok {
		return true
	}
	if now.After(until) {
		delete(p.cooling, key)
		return true
	}
	return false
}

// ReportRateLimit puts key into cooldown, restarting any cooldown already running.
func (p *Pool) ReportRateLimit(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.hasKeyLocked(key) {
		return
	}
	p.cooling[key] = p.now().Add(p.cooldown)
	log.WithFields(log.Fields{
		"key":      Mask(key),
		"cooldown": p.cooldown,
	}).Info("API key rate limited")
}

func (p *Pool) hasKeyLocked(key string) bool {
	for _, k := range p.keys {
		if k == key {
			return true
		}
	}
	return false
}

// Len returns the number of keys
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Cooling returns the number of keys currently in cooldown
func (p *Pool) Cooling() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	count := 0
	for _, k := range p.keys {
		if !p.readyLocked(k, now) {
			count++
		}
	}
	return count
}

// Mask hides all but the last four characters of a key for logging.
func Mask(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "..." + key[len(key)-4:]
}
