// Package cache keeps loaded class state between requests. Entries are
// dropped on every mutation of their class, so a hit always reflects the
// latest roster and assessment log.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pavelanni/rollcall/internal/model"
)

// Cache stores ClassState values by class id. Returned states are shared
// and must not be modified.
type Cache interface {
	Get(ctx context.Context, classID string) (*model.ClassState, bool)
	Put(ctx context.Context, state *model.ClassState)
	Invalidate(ctx context.Context, classID string)
}

// Kind names a cache backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindRedis  Kind = "redis"
	KindNone   Kind = "none"
)

// Options configure New.
type Options struct {
	Kind      Kind
	TTL       time.Duration
	RedisAddr string
	RedisDB   int
	RedisPass string
}

// New builds the cache selected by opts.Kind.
func New(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Kind {
	case KindMemory, "":
		return NewMemory(opts.TTL), nil
	case KindRedis:
		return NewRedis(ctx, opts.RedisAddr, opts.RedisPass, opts.RedisDB, opts.TTL)
	case KindNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache kind %q", opts.Kind)
	}
}

type memEntry struct {
	state   *model.ClassState
	expires time.Time
}

// Memory is an in-process cache.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemory creates an in-process cache. A zero ttl keeps entries until
// they are invalidated.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, entries: make(map[string]memEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, classID string) (*model.ClassState, bool) {
	m.mu.RLock()
	e, ok := m.entries[classID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, classID)
		m.mu.Unlock()
		return nil, false
	}
	return e.state, true
}

func (m *Memory) Put(_ context.Context, state *model.ClassState) {
	e := memEntry{state: state}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[state.Class.ID] = e
	m.mu.Unlock()
}

func (m *Memory) Invalidate(_ context.Context, classID string) {
	m.mu.Lock()
	delete(m.entries, classID)
	m.mu.Unlock()
}

// Nop never holds anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (*model.ClassState, bool) { return nil, false }
func (Nop) Put(context.Context, *model.ClassState)                {}
func (Nop) Invalidate(context.Context, string)                    {}

// Versioned wraps a Cache with a per-class version bumped on every
// Invalidate. A caller reads the version before loading state from the
// database and stores the result with PutIfCurrent, so a load that raced
// with a mutation never puts the old state back.
type Versioned struct {
	Cache

	mu       sync.Mutex
	versions map[string]uint64
}

// NewVersioned wraps c.
func NewVersioned(c Cache) *Versioned {
	return &Versioned{Cache: c, versions: make(map[string]uint64)}
}

// Version returns the current version of classID.
func (v *Versioned) Version(classID string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.versions[classID]
}

// PutIfCurrent stores state unless its class was invalidated since version
// was read. It reports whether the state was stored.
func (v *Versioned) PutIfCurrent(ctx context.Context, state *model.ClassState, version uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.versions[state.Class.ID] != version {
		return false
	}
	v.Cache.Put(ctx, state)
	return true
}

// Invalidate bumps the class version and drops its entry.
func (v *Versioned) Invalidate(ctx context.Context, classID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.versions[classID]++
	v.Cache.Invalidate(ctx, classID)
}
