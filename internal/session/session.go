// Package session holds the wallet panel state of one page and runs the
// connect sequence against whatever wallet the page's host offers.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/hotdog/internal/domain"
	"github.com/vadiminshakov/hotdog/internal/events"
	"github.com/vadiminshakov/hotdog/internal/metrics"
	"github.com/vadiminshakov/hotdog/internal/wallet"
)

// connect outcomes, used as metric labels and journal values
const (
	OutcomeConnected    = "connected"
	OutcomeBalanceError = "balance_error"
	OutcomeConnectError = "connect_error"
	OutcomeNoWallet     = "no_wallet"
	OutcomeWebOnly      = "web_only"
	OutcomeSuperseded   = "superseded"
)

// Recorder receives the final state of every attempt that was not superseded.
type Recorder interface {
	Record(rec domain.ConnectRecord)
}

// Options are the knobs shared by every session.
type Options struct {
	// RequestTimeout bounds each wallet request. Zero waits forever.
	RequestTimeout time.Duration
	Recorder       Recorder
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Session is the state container behind one wallet panel.
type Session struct {
	id      string
	base    context.Context
	locator wallet.Locator
	opts    Options
	logger  *zap.Logger
	updates *events.Broadcaster[domain.State]

	mu         sync.Mutex
	state      domain.State
	generation uint64
	cancel     context.CancelFunc
	lastActive time.Time
	closed     bool
	wg         sync.WaitGroup
}

// New creates a session in the "Not connected" state. base bounds attempts
// started with StartConnect.
func New(base context.Context, id string, locator wallet.Locator, opts Options) *Session {
	opts = opts.withDefaults()
	now := opts.Now()

	return &Session{
		id:         id,
		base:       base,
		locator:    locator,
		opts:       opts,
		logger:     opts.Logger.With(zap.String("session", id)),
		updates:    events.NewBroadcaster[domain.State](16),
		state:      domain.NewState(now),
		lastActive: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns a snapshot of the current state.
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe returns the current state and a channel with every later change.
func (s *Session) Subscribe() (domain.State, chan domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.opts.Now()
	return s.state.Clone(), s.updates.Subscribe()
}

// Unsubscribe stops delivery to ch.
func (s *Session) Unsubscribe(ch chan domain.State) {
	s.updates.Unsubscribe(ch)
	s.touch()
}

// Subscribers reports how many observers are attached.
func (s *Session) Subscribers() int { return s.updates.Subscribers() }

// IdleSince reports when the session was last used.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.opts.Now()
	s.mu.Unlock()
}

// StartConnect runs Connect in the background, as a click does. It does
// nothing once the session is closed and reports whether an attempt started.
func (s *Session) StartConnect() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.Connect(s.base)
	}()
	return true
}

// Connect runs the whole sequence: locate the wallet, request accounts,
// then fetch the balance of the first one. A newer attempt cancels this one
// and nothing this one learns afterwards reaches the state.
func (s *Session) Connect(ctx context.Context) domain.State {
	ctx, gen, done := s.begin(ctx)
	defer done()

	provider, err := s.locator.Locate(ctx)
	switch {
	case errors.Is(err, wallet.ErrUnsupportedHost):
		return s.finish(gen, OutcomeWebOnly, func(st *domain.State) {
			st.Status = domain.WebOnly()
		})
	case err != nil:
		if !s.set(gen, func(st *domain.State) { st.Status = domain.Connecting() }) {
			return s.superseded()
		}
		return s.finish(gen, OutcomeConnectError, func(st *domain.State) {
			st.Status = domain.ConnectFailed(err)
		})
	}

	if !s.set(gen, func(st *domain.State) { st.Status = domain.Connecting() }) {
		return s.superseded()
	}

	if provider != nil {
		provider = s.opts.Metrics.Instrument(provider)
		if s.opts.RequestTimeout > 0 {
			provider = withTimeout(provider, s.opts.RequestTimeout)
		}
	}

	addr, err := wallet.Connect(ctx, provider)
	switch {
	case err != nil:
		s.logger.Info("wallet connect failed", zap.Error(err))
		return s.finish(gen, OutcomeConnectError, func(st *domain.State) {
			st.Status = domain.ConnectFailed(err)
		})
	case addr == nil:
		return s.finish(gen, OutcomeNoWallet, func(st *domain.State) {
			st.Status = domain.NoWalletFound()
		})
	}

	if !s.set(gen, func(st *domain.State) {
		st.Status = domain.Connected()
		st.Address = addr
		st.Balance = nil
	}) {
		return s.superseded()
	}

	balance, err := wallet.FetchBalance(ctx, provider, *addr)
	if err != nil {
		s.logger.Info("balance fetch failed", zap.String("address", addr.String()), zap.Error(err))
		return s.finish(gen, OutcomeBalanceError, func(st *domain.State) {
			st.Status = domain.BalanceFailed(err)
		})
	}

	return s.finish(gen, OutcomeConnected, func(st *domain.State) {
		st.Balance = &balance
	})
}

// begin starts a new attempt generation and cancels the previous attempt.
func (s *Session) begin(parent context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	s.cancel = cancel
	s.lastActive = s.opts.Now()
	s.mu.Unlock()

	return ctx, gen, func() {
		s.mu.Lock()
		if s.generation == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}
}

// set applies fn and publishes the result if gen is still the latest attempt.
func (s *Session) set(gen uint64, fn func(st *domain.State)) bool {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false
	}
	fn(&s.state)
	s.state.UpdatedAt = s.opts.Now()
	s.lastActive = s.state.UpdatedAt
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.updates.Publish(snapshot)
	return true
}

func (s *Session) finish(gen uint64, outcome string, fn func(st *domain.State)) domain.State {
	if !s.set(gen, fn) {
		return s.superseded()
	}

	state := s.State()
	s.opts.Metrics.RecordConnect(outcome)
	if s.opts.Recorder != nil {
		s.opts.Recorder.Record(domain.NewConnectRecord(state.UpdatedAt, s.id, outcome, state))
	}
	s.logger.Debug("connect attempt finished",
		zap.String("outcome", outcome),
		zap.String("status", state.Status.Text))

	return state
}

func (s *Session) superseded() domain.State {
	s.opts.Metrics.RecordConnect(OutcomeSuperseded)
	s.logger.Debug("connect attempt superseded")
	return s.State()
}

// Close cancels the in-flight attempt, waits for background attempts and
// closes every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	s.mu.Unlock()

	s.wg.Wait()
	s.updates.Close()
}

type timeoutProvider struct {
	next    wallet.Provider
	timeout time.Duration
}

func withTimeout(p wallet.Provider, d time.Duration) wallet.Provider {
	return &timeoutProvider{next: p, timeout: d}
}

func (t *timeoutProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result, err := t.next.Request(ctx, method, params...)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, errors.Errorf("no answer within %s", t.timeout)
	}
	return result, err
}
