package credentials

import (
	"errors"
	"strings"
	"sync"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

// Pool holds the API keys of a completion provider and the active-key cursor.
// All cursor mutation goes through mu.
type Pool struct {
	mu        sync.Mutex
	keys      []string
	cursor    int
	rotations int
}

func NewPool(keys []string) (*Pool, error) {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "credential pool", errors.New("no api keys configured"))
	}
	return &Pool{keys: cleaned}, nil
}

func (p *Pool) Len() int {
	return len(p.keys)
}

func (p *Pool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[p.cursor]
}

// Acquire returns the active key together with the cursor it was read at.
func (p *Pool) Acquire() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor, p.keys[p.cursor]
}

// Rotate unconditionally advances to the next key and returns it.
func (p *Pool) Rotate() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	return p.keys[p.cursor]
}

// RotateFrom advances only if the cursor still points at seen. Concurrent
// callers failing on the same key therefore rotate once, not once each.
func (p *Pool) RotateFrom(seen int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor != seen {
		return false
	}
	p.advanceLocked()
	return true
}

func (p *Pool) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Rotations reports how many times the cursor has moved.
func (p *Pool) Rotations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotations
}

func (p *Pool) advanceLocked() {
	p.cursor = (p.cursor + 1) % len(p.keys)
	p.rotations++
}
