// Package egress manages the pool of routing configurations (direct
// connections, HTTP(S)/SOCKS proxies) sessions lease from, tracks per-egress
// health, and validates reachability before handing one out.
package egress

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/firasghr/goantidetect/model"
)

// Strategy selects how Lease picks among the pool's healthy, unleased
// entries.
type Strategy string

const (
	// StrategyRoundRobin cycles through entries in order, resuming after the
	// last one leased. The default when a Pool's Strategy is left unset.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyRandom picks uniformly at random among qualifying entries.
	StrategyRandom Strategy = "random"
	// StrategyFirstAvailable always returns the first qualifying entry in
	// pool order, ignoring where the last lease left off.
	StrategyFirstAvailable Strategy = "first_available"
)

// NotFoundError is returned by Release/Mark when key does not name an
// egress currently tracked by the pool.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("egress: %q not found in pool", e.Key)
}

// ExhaustedError is returned by Lease when no healthy, unleased egress is
// available.
type ExhaustedError struct{}

func (e *ExhaustedError) Error() string { return "egress: pool exhausted, no healthy egress available" }

// Stats summarizes the pool's current composition.
type Stats struct {
	Total   int
	Valid   int
	Invalid int
	Slow    int
	Banned  int
	Unknown int
	InUse   int
}

// Pool holds a set of model.Egress configurations and rotates leases across
// them round-robin, skipping terminal (invalid/banned) entries. A
// sync.Mutex serialises all mutation, generalizing a flat round-robin
// rotation into a full health state machine.
type Pool struct {
	mu       sync.Mutex
	entries  []*model.Egress
	index    int
	strategy Strategy
}

// NewPool returns an empty Pool using StrategyRoundRobin; use Load or Add to
// populate it, and SetStrategy to change how Lease picks among entries.
func NewPool() *Pool {
	return &Pool{strategy: StrategyRoundRobin}
}

// SetStrategy changes how Lease selects among qualifying entries. Safe to
// call at any time, including against a pool with active leases.
func (p *Pool) SetStrategy(s Strategy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strategy = s
}

// Load replaces the pool's contents with egresses. Any in-flight leases
// against the previous contents become orphaned; callers should only Load
// before sessions start leasing.
func (p *Pool) Load(egresses []*model.Egress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append([]*model.Egress(nil), egresses...)
	p.index = 0
}

// Add appends a single egress to the pool.
func (p *Pool) Add(e *model.Egress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
}

// Lease returns a healthy, not-currently-in-use egress chosen according to
// the pool's Strategy (round-robin by default), marking it in-use. Returns
// ExhaustedError if none qualify.
func (p *Pool) Lease() (*model.Egress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	if n == 0 {
		return nil, &ExhaustedError{}
	}

	switch p.strategy {
	case StrategyRandom:
		return p.leaseRandom()
	case StrategyFirstAvailable:
		return p.leaseFirstAvailable()
	default:
		return p.leaseRoundRobin()
	}
}

func qualifies(e *model.Egress) bool {
	return !e.InUse && e.Health != model.HealthInvalid && e.Health != model.HealthBanned
}

func (p *Pool) take(e *model.Egress) *model.Egress {
	e.InUse = true
	e.UseCount++
	return e
}

// leaseRoundRobin must be called with p.mu held.
func (p *Pool) leaseRoundRobin() (*model.Egress, error) {
	n := len(p.entries)
	for i := 0; i < n; i++ {
		idx := (p.index + i) % n
		e := p.entries[idx]
		if !qualifies(e) {
			continue
		}
		p.index = (idx + 1) % n
		return p.take(e), nil
	}
	return nil, &ExhaustedError{}
}

// leaseFirstAvailable must be called with p.mu held.
func (p *Pool) leaseFirstAvailable() (*model.Egress, error) {
	for _, e := range p.entries {
		if qualifies(e) {
			return p.take(e), nil
		}
	}
	return nil, &ExhaustedError{}
}

// leaseRandom must be called with p.mu held.
func (p *Pool) leaseRandom() (*model.Egress, error) {
	qualifying := make([]*model.Egress, 0, len(p.entries))
	for _, e := range p.entries {
		if qualifies(e) {
			qualifying = append(qualifying, e)
		}
	}
	if len(qualifying) == 0 {
		return nil, &ExhaustedError{}
	}
	return p.take(qualifying[rand.IntN(len(qualifying))]), nil
}

// Release marks the egress identified by key as no longer in use, available
// to be leased again.
func (p *Pool) Release(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(key)
	if e == nil {
		return &NotFoundError{Key: key}
	}
	e.InUse = false
	return nil
}

// Mark updates the health state of the egress identified by key.
func (p *Pool) Mark(key string, health model.EgressHealth) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(key)
	if e == nil {
		return &NotFoundError{Key: key}
	}
	e.Health = health
	return nil
}

// RemoveInvalid drops every egress whose health is terminal (invalid or
// banned) from the pool and returns how many were removed.
func (p *Pool) RemoveInvalid() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.entries[:0]
	removed := 0
	for _, e := range p.entries {
		if e.Health == model.HealthInvalid || e.Health == model.HealthBanned {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	p.index = 0
	return removed
}

// Stats returns a snapshot of the pool's current composition.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s Stats
	s.Total = len(p.entries)
	for _, e := range p.entries {
		if e.InUse {
			s.InUse++
		}
		switch e.Health {
		case model.HealthValid:
			s.Valid++
		case model.HealthInvalid:
			s.Invalid++
		case model.HealthSlow:
			s.Slow++
		case model.HealthBanned:
			s.Banned++
		default:
			s.Unknown++
		}
	}
	return s
}

// Entries returns a snapshot slice of every egress currently tracked by the
// pool, for callers (such as ValidateAll) that need to walk the whole set
// rather than lease one at a time. The returned slice shares the underlying
// *model.Egress pointers with the pool.
func (p *Pool) Entries() []*model.Egress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*model.Egress(nil), p.entries...)
}

// find must be called with p.mu held.
func (p *Pool) find(key string) *model.Egress {
	for _, e := range p.entries {
		if e.Key() == key {
			return e
		}
	}
	return nil
}
