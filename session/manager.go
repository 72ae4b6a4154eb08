// Package session assembles the (fingerprint, egress, storage) triple a
// batch task runs under - model.UniqueSession - and enforces that no two
// live sessions in the same batch share a fingerprint hash or egress
// identifier. Grounded algorithmically on
// application/session_manager.py's SessionManager, carrying over its
// sync.RWMutex-guarded-map idiom for tracking live sessions.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/firasghr/goantidetect/egress"
	"github.com/firasghr/goantidetect/fingerprint"
	"github.com/firasghr/goantidetect/model"
	"github.com/firasghr/goantidetect/profile"
)

// maxUniquenessAttempts mirrors session_manager.py's max_attempts for both
// the fingerprint and egress uniqueness loops.
const maxUniquenessAttempts = 100

// Manager composes fingerprints, egresses, and storage paths into unique
// sessions for a batch, tracking which fingerprint hashes and egress keys
// have already been handed out this batch.
type Manager struct {
	pool    *egress.Pool
	store   *profile.Store
	dataDir string

	mu               sync.RWMutex
	active           map[string]*model.UniqueSession
	usedFingerprints map[string]bool
	usedEgressKeys   map[string]bool
}

// NewManager creates a Manager that leases egresses from pool and persists
// profiles through store. dataDir is the root under which each session's
// storage directory is created (dataDir/<session-id>).
func NewManager(pool *egress.Pool, store *profile.Store, dataDir string) *Manager {
	return &Manager{
		pool:             pool,
		store:            store,
		dataDir:          dataDir,
		active:           make(map[string]*model.UniqueSession),
		usedFingerprints: make(map[string]bool),
		usedEgressKeys:   make(map[string]bool),
	}
}

// CreateUniqueOptions controls CreateUnique's behaviour for one session.
type CreateUniqueOptions struct {
	// Platform pins the fingerprint's platform family. Empty lets the
	// generator pick.
	Platform model.PlatformFamily
	// AllowEgressReuse permits handing out an egress already leased to
	// another live session in this batch.
	AllowEgressReuse bool
	// Metadata is copied onto the resulting session's Metadata map under the
	// caller's own keys; "task_id", "fingerprint_hash", and "egress_key" are
	// always set by CreateUnique and override any caller-supplied values
	// under those keys.
	Metadata map[string]any
}

// CreateUnique mints a session id and 256-bit seed, generates a fingerprint
// that has not been used yet this batch (falling back to a forced accept
// after maxUniquenessAttempts collisions), leases an egress that has not
// been used yet this batch (falling back to nil if the pool is exhausted),
// and assembles the result into a tracked model.UniqueSession.
func (m *Manager) CreateUnique(taskID string, opts CreateUniqueOptions) (*model.UniqueSession, error) {
	sessionID, err := randomID()
	if err != nil {
		return nil, fmt.Errorf("session: mint id: %w", err)
	}
	seed, err := randomSeed()
	if err != nil {
		return nil, fmt.Errorf("session: mint seed: %w", err)
	}

	fp, err := m.uniqueFingerprint(opts.Platform, seed)
	if err != nil {
		return nil, fmt.Errorf("session: generate fingerprint: %w", err)
	}

	eg := m.uniqueEgress(opts.AllowEgressReuse)

	meta := make(map[string]any, len(opts.Metadata)+3)
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	meta["task_id"] = taskID
	meta["fingerprint_hash"] = fp.Hash
	if eg != nil {
		meta["egress_key"] = eg.Key()
	} else {
		meta["egress_key"] = nil
	}

	now := time.Now()
	sess := &model.UniqueSession{
		ID: sessionID,
		Profile: model.BrowserProfile{
			ID:          sessionID,
			Fingerprint: *fp,
			Egress:      eg,
			StoragePath: m.dataDir + "/" + sessionID,
			CreatedAt:   now,
		},
		CreatedAt: now,
		Seed:      seed,
		Metadata:  meta,
	}

	m.mu.Lock()
	m.active[sessionID] = sess
	m.mu.Unlock()

	return sess, nil
}

// uniqueFingerprint implements the 100-attempt uniqueness loop: generate,
// hash, check against usedFingerprints, retry on collision, force-accept the
// last generated fingerprint if every attempt collided.
func (m *Manager) uniqueFingerprint(platform model.PlatformFamily, seed string) (*model.Fingerprint, error) {
	var last *model.Fingerprint

	for i := 0; i < maxUniquenessAttempts; i++ {
		fp, err := m.generate(platform, seed, i)
		if err != nil {
			return nil, err
		}
		last = fp

		m.mu.Lock()
		if !m.usedFingerprints[fp.Hash] {
			m.usedFingerprints[fp.Hash] = true
			m.mu.Unlock()
			return fp, nil
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.usedFingerprints[last.Hash] = true
	m.mu.Unlock()
	return last, nil
}

// generate produces one candidate fingerprint for attempt i of the
// uniqueness loop. Each retry after the first derives a fresh sub-seed so
// repeated collisions do not generate the same fingerprint forever.
func (m *Manager) generate(platform model.PlatformFamily, seed string, attempt int) (*model.Fingerprint, error) {
	attemptSeed := seed
	if attempt > 0 {
		attemptSeed = fmt.Sprintf("%s:%d", seed, attempt)
	}
	if platform == "" {
		return fingerprint.GenerateFromSeed(attemptSeed), nil
	}
	return fingerprint.GenerateForPlatformFromSeed(attemptSeed, platform)
}

// uniqueEgress implements the egress-side uniqueness loop: lease, check
// against usedEgressKeys (unless reuse is allowed), release-and-retry on
// collision, nil on pool exhaustion.
func (m *Manager) uniqueEgress(allowReuse bool) *model.Egress {
	if m.pool == nil {
		return nil
	}

	for i := 0; i < maxUniquenessAttempts; i++ {
		eg, err := m.pool.Lease()
		if err != nil {
			return nil
		}

		m.mu.Lock()
		used := m.usedEgressKeys[eg.Key()]
		if allowReuse || !used {
			m.usedEgressKeys[eg.Key()] = true
			m.mu.Unlock()
			return eg
		}
		m.mu.Unlock()

		_ = m.pool.Release(eg.Key())
	}

	eg, err := m.pool.Lease()
	if err != nil {
		return nil
	}
	return eg
}

// Release drops sessionID from the active set and releases its egress lease
// back to the pool, if any.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	sess, ok := m.active[sessionID]
	delete(m.active, sessionID)
	m.mu.Unlock()

	if !ok || m.pool == nil || sess.Profile.Egress == nil {
		return
	}
	_ = m.pool.Release(sess.Profile.Egress.Key())
}

// Save persists sessionID's current profile through the profile store.
func (m *Manager) Save(sessionID string) error {
	m.mu.RLock()
	sess, ok := m.active[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session: %q is not active", sessionID)
	}
	if m.store == nil {
		return nil
	}
	return m.store.Save(&sess.Profile)
}

// Get returns the active session for sessionID, or nil if none is tracked.
func (m *Manager) Get(sessionID string) *model.UniqueSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// ActiveCount returns the number of currently tracked sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// ResetUniquenessTracking clears the used-fingerprint and used-egress sets.
// Call once at the start of every batch so the previous batch's choices do
// not constrain the new one.
func (m *Manager) ResetUniquenessTracking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usedFingerprints = make(map[string]bool)
	m.usedEgressKeys = make(map[string]bool)
}

func randomID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func randomSeed() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
