package service

import (
	"context"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/assist"
	"github.com/capitalize-ai/ev-service-portal/internal/identity"
	"github.com/capitalize-ai/ev-service-portal/internal/push"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

// Registry hands out one workspace per user and evicts idle ones.
type Registry struct {
	backend  Backend
	pool     *push.Pool
	identity *identity.Store
	suggest  *assist.Suggester
	settings Settings
	idleTTL  time.Duration
	now      func() time.Time
	logger   *logger.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// RegistryOptions configures a Registry. Identity and Suggester may be nil.
type RegistryOptions struct {
	Backend   Backend
	Pool      *push.Pool
	Identity  *identity.Store
	Suggester *assist.Suggester
	Settings  Settings
	IdleTTL   time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions, log *logger.Logger) *Registry {
	return &Registry{
		backend:    opts.Backend,
		pool:       opts.Pool,
		identity:   opts.Identity,
		suggest:    opts.Suggester,
		settings:   opts.Settings,
		idleTTL:    opts.IdleTTL,
		now:        time.Now,
		logger:     log.Named("registry"),
		workspaces: make(map[string]*Workspace),
	}
}

// Get returns the workspace of user, creating it on first use. A customer
// signing in on a known device is remembered as that device's user.
func (r *Registry) Get(ctx context.Context, user User) *Workspace {
	now := r.now()

	r.mu.Lock()
	w, ok := r.workspaces[user.ID]
	if !ok {
		w = newWorkspace(user, r.backend, r.pool, r.identity, r.suggest, r.settings, r.logger)
		r.workspaces[user.ID] = w
	}
	w.touch(now)
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("workspace created", zap.String("user_id", user.ID), zap.String("role", user.Role))
		if r.identity != nil && user.Role == RoleCustomer && user.CustomerID != "" && user.Device != "" {
			if err := r.identity.RememberUser(ctx, user.Device, user.CustomerID); err != nil {
				r.logger.Warn("failed to remember user", zap.String("user_id", user.ID), zap.Error(err))
			}
		}
	}
	return w
}

// SignOut forgets the user cached on the caller's device and closes the
// caller's workspace. The device keeps its guest session.
func (r *Registry) SignOut(ctx context.Context, user User) error {
	if r.identity != nil && !user.Guest() && user.Device != "" {
		if err := r.identity.ForgetUser(ctx, user.Device); err != nil {
			return err
		}
	}

	r.mu.Lock()
	w, ok := r.workspaces[user.ID]
	delete(r.workspaces, user.ID)
	r.mu.Unlock()

	if ok {
		w.Close()
		r.logger.Debug("signed out", zap.String("user_id", user.ID))
	}
	return nil
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Evict closes workspaces idle for longer than the idle TTL and returns how
// many were closed. A non-positive TTL disables eviction.
func (r *Registry) Evict() int {
	if r.idleTTL <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	all := maps.Clone(r.workspaces)
	r.mu.Unlock()

	candidates := make(map[string]*Workspace)
	for id, w := range all {
		if w.idleSince(now) > r.idleTTL {
			candidates[id] = w
		}
	}

	var idle []*Workspace
	r.mu.Lock()
	for id, w := range candidates {
		// Skip workspaces replaced or touched since the snapshot.
		if r.workspaces[id] == w && w.idleSince(now) > r.idleTTL {
			idle = append(idle, w)
			delete(r.workspaces, id)
		}
	}
	r.mu.Unlock()

	for _, w := range idle {
		w.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("evicted idle workspaces", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run evicts idle workspaces every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evict()
		}
	}
}

// Close closes every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.workspaces
	r.workspaces = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, w := range all {
		w.Close()
	}
}
