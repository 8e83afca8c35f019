// Package optimistic runs latency-sensitive writes as explicit state
// machines: a prediction is layered over the cache at once and is later
// either confirmed by the server result or rolled back to the snapshot taken
// before it was applied.
package optimistic

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danz-app/danz/internal/cache"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"github.com/danz-app/danz/internal/platform/id"
	"go.uber.org/zap"
)

// Status is a mutation's position in its lifecycle.
type Status int

const (
	// Pending means the prediction is visible and the server has not answered.
	Pending Status = iota
	// Confirmed means the server result replaced the prediction.
	Confirmed
	// RolledBack means the prediction was removed after a failure.
	RolledBack
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrSettled is returned when a mutation that already left Pending is
// confirmed or rolled back again.
var ErrSettled = errors.New("mutation already settled")

// Manager creates mutations over one cache.
type Manager struct {
	cache  *cache.Cache
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*Mutation
}

// NewManager builds a Manager for c.
func NewManager(c *cache.Cache, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cache: c, logger: logger, pending: make(map[string]*Mutation)}
}

// Mutation is one optimistic write in flight.
type Mutation struct {
	id      string
	name    string
	stamp   cache.Stamp
	manager *Manager

	mu       sync.Mutex
	status   Status
	snapshot cache.Snapshot
	err      error
}

// Begin applies the prediction built by predict and returns the pending
// mutation. stamp orders it against every other operation; pass the stamp
// issued when the user acted.
func (m *Manager) Begin(name string, stamp cache.Stamp, predict func(cache.View) cache.Patch) *Mutation {
	if stamp == 0 {
		stamp = m.cache.Begin()
	}
	mut := &Mutation{id: id.MustNewID(), name: name, stamp: stamp, manager: m}
	_, mut.snapshot = m.cache.Predict(mut.id, stamp, predict)

	m.mu.Lock()
	m.pending[mut.id] = mut
	m.mu.Unlock()
	m.logger.Debug("optimistic mutation applied", zap.String("mutation", name), zap.String("id", mut.id))
	return mut
}

// Pending reports how many mutations await the server.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) settle(mut *Mutation) {
	m.mu.Lock()
	delete(m.pending, mut.id)
	m.mu.Unlock()
}

// ID returns the mutation identifier, also used as its cache layer id.
func (mut *Mutation) ID() string { return mut.id }

// Name returns the operation name.
func (mut *Mutation) Name() string { return mut.name }

// Stamp returns the initiation stamp.
func (mut *Mutation) Stamp() cache.Stamp { return mut.stamp }

// Status returns the current lifecycle position.
func (mut *Mutation) Status() Status {
	mut.mu.Lock()
	defer mut.mu.Unlock()
	return mut.status
}

// Snapshot returns the state captured before the prediction was applied.
func (mut *Mutation) Snapshot() cache.Snapshot {
	mut.mu.Lock()
	defer mut.mu.Unlock()
	return mut.snapshot
}

// Err returns the failure that rolled the mutation back, if any.
func (mut *Mutation) Err() error {
	mut.mu.Lock()
	defer mut.mu.Unlock()
	return mut.err
}

// Confirm replaces the prediction with the confirmed patch built against the
// base store. The write carries the initiation stamp, so a confirmation
// arriving after a newer intent's cannot overwrite it.
func (mut *Mutation) Confirm(build func(cache.View) cache.Patch) error {
	mut.mu.Lock()
	defer mut.mu.Unlock()
	if mut.status != Pending {
		return ErrSettled
	}
	if build == nil {
		build = func(cache.View) cache.Patch { return cache.Patch{} }
	}
	mut.manager.cache.CommitWith(mut.id, mut.stamp, build)
	mut.status = Confirmed
	mut.manager.settle(mut)
	mut.manager.logger.Debug("optimistic mutation confirmed", zap.String("mutation", mut.name), zap.String("id", mut.id))
	return nil
}

// Rollback removes the prediction, restoring the snapshot view, and returns
// the rollback error wrapping cause for the caller to surface.
func (mut *Mutation) Rollback(cause error) error {
	mut.mu.Lock()
	defer mut.mu.Unlock()
	if mut.status != Pending {
		return ErrSettled
	}
	mut.manager.cache.RemoveLayer(mut.id)
	mut.status = RolledBack
	mut.err = apperrors.Wrap(apperrors.CodeRollback, fmt.Sprintf("%s rolled back", mut.name), cause).
		WithMetadata("operation", mut.name)
	mut.manager.settle(mut)
	mut.manager.logger.Info("optimistic mutation rolled back",
		zap.String("mutation", mut.name), zap.String("id", mut.id), zap.Error(cause))
	return mut.err
}
