package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/hotdog/internal/clients"
)

// ErrUnknownSession is returned for ids the registry does not hold.
var ErrUnknownSession = errors.New("unknown session")

type entry struct {
	session *Session
	locator *BridgeLocator
}

// Registry keeps the sessions of every open page. A session is dropped once
// it has had no bridge and no subscribers for the configured ttl.
type Registry struct {
	base          context.Context
	ttl           time.Duration
	attachTimeout time.Duration
	opts          Options
	logger        *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewRegistry creates an empty registry. base bounds every connect attempt.
func NewRegistry(base context.Context, ttl, attachTimeout time.Duration, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		base:          base,
		ttl:           ttl,
		attachTimeout: attachTimeout,
		opts:          opts,
		logger:        opts.Logger,
		sessions:      make(map[string]*entry),
	}
}

// Create opens a session for a freshly served page.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	locator := NewBridgeLocator(r.attachTimeout)
	s := New(r.base, id, locator, r.opts)

	r.mu.Lock()
	r.sessions[id] = &entry{session: s, locator: locator}
	r.mu.Unlock()

	r.opts.Metrics.SessionOpened()
	r.logger.Debug("session created", zap.String("session", id))
	return s
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, errors.Wrap(ErrUnknownSession, id)
	}
	return e.session, nil
}

// Attach connects a page bridge to the session it was opened for.
func (r *Registry) Attach(id string, b *clients.BridgeClient) error {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return errors.Wrap(ErrUnknownSession, id)
	}

	e.locator.Attach(b)
	e.session.touch()
	return nil
}

// Detach drops b from the session. The session itself stays until it idles out.
func (r *Registry) Detach(id string, b *clients.BridgeClient) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.locator.Detach(b)
	e.session.touch()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions that idled past the ttl and returns how many it closed.
func (r *Registry) Sweep(now time.Time) int {
	var expired []*entry

	r.mu.Lock()
	for id, e := range r.sessions {
		if e.locator.Attached() || e.session.Subscribers() > 0 {
			continue
		}
		if now.Sub(e.session.IdleSince()) < r.ttl {
			continue
		}
		delete(r.sessions, id)
		expired = append(expired, e)
	}
	r.mu.Unlock()

	for _, e := range expired {
		e.session.Close()
		r.opts.Metrics.SessionClosed()
		r.logger.Debug("session expired", zap.String("session", e.session.ID()))
	}

	return len(expired)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			if n := r.Sweep(r.opts.Now()); n > 0 {
				r.logger.Info("expired idle sessions", zap.Int("count", n), zap.Int("active", r.Len()))
			}
		}
	}
}

// Close closes and forgets every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range all {
		e.session.Close()
		r.opts.Metrics.SessionClosed()
	}
}
