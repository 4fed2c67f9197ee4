// Package cache memoizes resolution results for the duration of a discovery
// pass. Each (element, target, inherit) key is computed at most once, even
// under concurrent callers.
package cache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/tessera-run/tessera/pkg/engine"
)

// Memo is a memoizing engine.Resolving. Cached results are shared between
// callers and must be treated as read-only. Errors are never cached.
type Memo struct {
	inner   engine.Resolving
	group   singleflight.Group
	entries map[string]engine.Result
	mu      sync.RWMutex

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewMemo wraps inner.
func NewMemo(inner engine.Resolving) *Memo {
	return &Memo{
		inner:   inner,
		entries: make(map[string]engine.Result),
	}
}

// Resolve returns the cached result for the key or computes it once.
func (m *Memo) Resolve(e engine.Element, target *engine.MarkerType, inherit bool) (engine.Result, error) {
	key := Key(e, target, inherit)

	m.mu.RLock()
	result, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		m.hits.Add(1)
		return result, nil
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		// A concurrent flight may have finished between the read and Do.
		m.mu.RLock()
		result, ok := m.entries[key]
		m.mu.RUnlock()
		if ok {
			m.hits.Add(1)
			return result, nil
		}

		m.misses.Add(1)
		result, err := m.inner.Resolve(e, target, inherit)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.entries[key] = result
		m.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(engine.Result), nil
}

// Reset drops every entry. Used when the underlying snapshot is replaced.
func (m *Memo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]engine.Result)
	m.hits.Store(0)
	m.misses.Store(0)
}

// Stats returns a point-in-time view of the counters.
func (m *Memo) Stats() Stats {
	m.mu.RLock()
	entries := len(m.entries)
	m.mu.RUnlock()

	return Stats{
		Entries: entries,
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}
}

// Key builds the memo key of one resolution.
func Key(e engine.Element, target *engine.MarkerType, inherit bool) string {
	name := "*"
	if target != nil {
		name = target.QualifiedName()
	}
	return e.String() + "|" + name + "|" + strconv.FormatBool(inherit)
}

var _ engine.Resolving = (*Memo)(nil)
