package push

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
	"github.com/capitalize-ai/ev-service-portal/pkg/metrics"
)

// Pool shares one hub connection between every mounted chat view. The first
// Acquire dials and the last Release disconnects.
type Pool struct {
	dial   Dialer
	logger *logger.Logger

	mu   sync.Mutex
	hub  Hub
	refs int
}

// NewPool creates a pool that dials with dial.
func NewPool(dial Dialer, log *logger.Logger) *Pool {
	return &Pool{dial: dial, logger: log.Named("push")}
}

// Lease is a hold on the pooled connection.
type Lease struct {
	pool *Pool
	hub  Hub
	once sync.Once
}

// Hub returns the leased connection.
func (l *Lease) Hub() Hub {
	return l.hub
}

// Release gives the lease back. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.pool.release)
}

// Acquire takes a lease, dialling if no connection is open.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hub == nil {
		hub, err := p.dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to connect push channel: %w", err)
		}
		p.hub = hub
		p.logger.Info("push channel connected")
	}
	p.refs++
	metrics.PushLeasesActive.Inc()
	return &Lease{pool: p, hub: p.hub}, nil
}

// Active returns the number of outstanding leases.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

// Connected reports whether a connection is open.
func (p *Pool) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hub != nil
}

func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refs--
	metrics.PushLeasesActive.Dec()
	if p.refs > 0 || p.hub == nil {
		return
	}
	if err := p.hub.Close(); err != nil {
		p.logger.Warn("failed to close push channel", zap.Error(err))
	}
	p.hub = nil
	p.logger.Info("push channel disconnected")
}

// Close drops the connection regardless of outstanding leases.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hub == nil {
		return nil
	}
	err := p.hub.Close()
	p.hub = nil
	return err
}
