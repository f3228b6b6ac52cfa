package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/solwave/solwave/internal/address"
	"github.com/solwave/solwave/internal/ledger"
	"github.com/solwave/solwave/internal/metrics"
	"github.com/solwave/solwave/internal/wallet"
)

const connectKey = "connect"

// Controller owns the wallet session: it drives the provider handshake,
// tracks the connected identity and keeps the balance snapshot in sync with
// that identity. All methods are safe for concurrent use.
type Controller struct {
	detector       wallet.Detector
	ledger         ledger.Ledger
	logger         *slog.Logger
	metrics        *metrics.Metrics
	network        string
	connectTimeout time.Duration
	fetchTimeout   time.Duration
	now            func() time.Time

	connects singleflight.Group

	mu            sync.Mutex
	initialized   bool
	provider      wallet.Provider
	status        Status
	identity      string
	connectedAt   time.Time
	lastError     *ErrorDescriptor
	disconnecting bool
	disconnected  chan struct{}
	generation    uint64
	fetchSeq      uint64
	balance       BalanceSnapshot
	inflight      *fetch

	listenersMu  sync.RWMutex
	listeners    []listenerEntry
	nextListener uint64
}

type fetch struct {
	generation uint64
	identity   string
	seq        uint64
	cancel     context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records session activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithNetwork labels sessions with the configured ledger network.
func WithNetwork(name string) Option {
	return func(c *Controller) { c.network = name }
}

// WithConnectTimeout bounds the provider handshake. Zero means no timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Controller) { c.connectTimeout = d }
}

// WithFetchTimeout bounds each balance query. Zero means no timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) { c.fetchTimeout = d }
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController builds a controller in the Disconnected state.
func NewController(detector wallet.Detector, l ledger.Ledger, opts ...Option) *Controller {
	c := &Controller{
		detector: detector,
		ledger:   l,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		status:   StatusDisconnected,
		balance:  BalanceSnapshot{State: BalanceIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize detects the wallet provider. It never connects. Detection is
// skipped while a session is active so the live provider is not swapped.
func (c *Controller) Initialize() bool {
	c.mu.Lock()
	if c.initialized && c.status != StatusDisconnected {
		available := c.provider != nil
		c.mu.Unlock()
		return available
	}
	c.mu.Unlock()

	var (
		p  wallet.Provider
		ok bool
	)
	if c.detector != nil {
		p, ok = c.detector.Detect()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	if c.status == StatusDisconnected {
		c.provider = nil
		if ok {
			c.provider = p
		}
	}
	if c.provider == nil {
		c.logger.Info("no wallet provider detected")
		return false
	}
	c.logger.Info("wallet provider available", "provider", c.provider.Name())
	return true
}

// ProviderAvailable reports the result of the last detection.
func (c *Controller) ProviderAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider != nil
}

// Session returns the current session snapshot.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionLocked()
}

// Balance returns the current balance snapshot.
func (c *Controller) Balance() BalanceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance.clone()
}

// View returns session and balance read under one lock.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{Session: c.sessionLocked(), Balance: c.balance.clone(), ProviderAvailable: c.provider != nil}
}

// Connect performs the provider handshake. Callers arriving while a
// handshake is in flight share its result; no second handshake is issued.
// A call made while a disconnect is in flight waits for it and then starts a
// fresh handshake. ctx only bounds how long the caller waits.
func (c *Controller) Connect(ctx context.Context) (Session, error) {
	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()
	if !initialized {
		c.Initialize()
	}

	for {
		c.mu.Lock()
		if c.provider == nil {
			s := c.sessionLocked()
			c.mu.Unlock()
			c.metrics.Connect(metrics.OutcomeNoProvider)
			return s, ErrProviderUnavailable
		}
		if c.disconnecting {
			done := c.disconnected
			c.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return c.Session(), ctx.Err()
			}
		}
		if c.status == StatusConnected {
			s := c.sessionLocked()
			c.mu.Unlock()
			return s, nil
		}
		if c.status == StatusConnecting {
			c.metrics.Connect(metrics.OutcomeJoined)
		}
		c.mu.Unlock()

		ch := c.connects.DoChan(connectKey, func() (any, error) {
			return c.handshake()
		})
		select {
		case res := <-ch:
			if errors.Is(res.Err, errDisconnectPending) {
				continue
			}
			s, _ := res.Val.(Session)
			return s, res.Err
		case <-ctx.Done():
			return c.Session(), ctx.Err()
		}
	}
}

func (c *Controller) handshake() (Session, error) {
	c.mu.Lock()
	if c.disconnecting {
		s := c.sessionLocked()
		c.mu.Unlock()
		return s, errDisconnectPending
	}
	if c.status == StatusConnected {
		s := c.sessionLocked()
		c.mu.Unlock()
		return s, nil
	}
	p := c.provider
	if p == nil {
		s := c.sessionLocked()
		c.mu.Unlock()
		return s, ErrProviderUnavailable
	}
	c.status = StatusConnecting
	c.lastError = nil
	connecting := c.sessionLocked()
	gen := c.generation
	c.mu.Unlock()
	c.emit(Event{Kind: EventStatusChanged, Session: connecting, Generation: gen})

	ctx := context.Background()
	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	identity, err := p.Connect(ctx)
	if err == nil {
		err = address.Validate(identity)
	}
	if err != nil {
		return c.failConnect(p, err)
	}

	c.mu.Lock()
	c.status = StatusConnected
	c.connectedAt = c.now()
	changed := c.setIdentityLocked(identity)
	s := c.sessionLocked()
	c.mu.Unlock()

	c.metrics.Connect(metrics.OutcomeSuccess)
	c.metrics.Connected(true)
	c.logger.Info("wallet connected", "provider", p.Name(), "identity", address.Short(identity), "network", c.network)
	c.emit(Event{Kind: EventStatusChanged, Session: s, Generation: changed.Generation}, changed)
	return s, nil
}

func (c *Controller) failConnect(p wallet.Provider, cause error) (Session, error) {
	err := fmt.Errorf("%w: %w", ErrConnectRejected, cause)

	c.mu.Lock()
	c.status = StatusError
	c.lastError = &ErrorDescriptor{Kind: kindOf(err), Message: cause.Error(), At: c.now()}
	failed := c.sessionLocked()
	c.status = StatusDisconnected
	reset := c.sessionLocked()
	gen := c.generation
	c.mu.Unlock()

	outcome := metrics.OutcomeRejected
	if errors.Is(cause, address.ErrInvalidIdentity) {
		outcome = metrics.OutcomeInvalid
	}
	c.metrics.Connect(outcome)
	c.logger.Warn("wallet connect rejected", "provider", p.Name(), "error", cause)
	c.emit(
		Event{Kind: EventConnectFailed, Session: failed, Generation: gen},
		Event{Kind: EventStatusChanged, Session: reset, Generation: gen},
	)
	return reset, err
}

// Disconnect ends a connected session. The provider is asked to disconnect,
// then local state is reset whether or not that call succeeded. It is a
// no-op unless the session is connected.
func (c *Controller) Disconnect(ctx context.Context) (Session, error) {
	c.mu.Lock()
	if c.status != StatusConnected || c.disconnecting {
		s := c.sessionLocked()
		c.mu.Unlock()
		return s, nil
	}
	c.disconnecting = true
	done := make(chan struct{})
	c.disconnected = done
	p := c.provider
	prev := c.identity
	c.mu.Unlock()

	outcome := metrics.OutcomeSuccess
	if err := p.Disconnect(ctx); err != nil {
		outcome = metrics.OutcomeProviderErr
		c.logger.Warn("wallet provider disconnect failed", "provider", p.Name(), "error", err)
	}

	c.mu.Lock()
	c.disconnecting = false
	c.disconnected = nil
	close(done)
	c.status = StatusDisconnected
	c.connectedAt = time.Time{}
	c.lastError = nil
	changed := c.setIdentityLocked("")
	s := c.sessionLocked()
	c.mu.Unlock()

	c.metrics.Disconnect(outcome)
	c.metrics.Connected(false)
	c.logger.Info("wallet disconnected", "provider", p.Name(), "identity", address.Short(prev))
	c.emit(Event{Kind: EventStatusChanged, Session: s, Generation: changed.Generation}, changed)
	return s, nil
}

// RefreshBalance requests a new balance fetch for the connected identity.
// A refresh while a fetch for the same identity is in flight is skipped.
func (c *Controller) RefreshBalance() (BalanceSnapshot, error) {
	c.mu.Lock()
	if c.status != StatusConnected {
		c.mu.Unlock()
		c.metrics.Refresh(metrics.OutcomeFailed)
		return BalanceSnapshot{State: BalanceIdle}, ErrNotConnected
	}
	gen, identity := c.generation, c.identity
	c.mu.Unlock()

	snap, started := c.startFetch(gen, identity)
	if !started {
		c.metrics.Refresh(metrics.OutcomeSkipped)
		return snap, nil
	}
	c.metrics.Refresh(metrics.OutcomeSuccess)
	return snap, nil
}

// Close cancels any balance fetch in flight.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		c.inflight.cancel()
		c.inflight = nil
	}
}

// setIdentityLocked moves to a new identity generation: the in-flight fetch
// is cancelled and the previous snapshot is dropped before any new fetch.
func (c *Controller) setIdentityLocked(next string) Event {
	prev := c.identity
	c.identity = next
	c.generation++
	if c.inflight != nil {
		c.inflight.cancel()
		c.inflight = nil
	}
	c.balance = BalanceSnapshot{Identity: next, State: BalanceIdle}
	return Event{
		Kind:             EventIdentityChanged,
		Session:          c.sessionLocked(),
		Balance:          c.balance.clone(),
		PreviousIdentity: prev,
		Generation:       c.generation,
	}
}

func (c *Controller) startFetch(gen uint64, identity string) (BalanceSnapshot, bool) {
	c.mu.Lock()
	if gen != c.generation || identity != c.identity || c.status != StatusConnected || c.inflight != nil {
		snap := c.balance.clone()
		c.mu.Unlock()
		return snap, false
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.fetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.fetchTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.fetchSeq++
	f := &fetch{generation: gen, identity: identity, seq: c.fetchSeq, cancel: cancel}
	c.inflight = f
	c.balance.State = BalanceLoading
	snap := c.balance.clone()
	s := c.sessionLocked()
	c.mu.Unlock()

	c.emit(Event{Kind: EventBalanceLoading, Session: s, Balance: snap, Generation: gen})
	go c.runFetch(ctx, f)
	return snap, true
}

func (c *Controller) runFetch(ctx context.Context, f *fetch) {
	defer f.cancel()

	start := time.Now()
	lamports, err := c.ledger.Balance(ctx, f.identity)
	took := time.Since(start)

	c.mu.Lock()
	if c.inflight == f {
		c.inflight = nil
	}
	if f.generation != c.generation || f.identity != c.identity {
		current := c.generation
		c.mu.Unlock()
		c.metrics.Stale()
		c.logger.Debug("discarding stale balance", "identity", address.Short(f.identity), "generation", f.generation, "current", current)
		c.emit(Event{Kind: EventBalanceStale, Balance: BalanceSnapshot{Identity: f.identity, State: BalanceIdle}, Generation: f.generation})
		return
	}

	kind := EventBalanceUpdated
	now := c.now()
	if err != nil {
		kind = EventBalanceFailed
		c.balance.State = BalanceFailed
		c.balance.Err = &ErrorDescriptor{Kind: kindOf(err), Message: err.Error(), At: now}
	} else {
		c.balance = BalanceSnapshot{
			Identity:  f.identity,
			Lamports:  lamports,
			HasAmount: true,
			FetchedAt: f.seq,
			UpdatedAt: &now,
			State:     BalanceReady,
		}
	}
	snap := c.balance.clone()
	s := c.sessionLocked()
	c.mu.Unlock()

	if err != nil {
		c.metrics.Fetch(metrics.OutcomeFailed, took)
		c.logger.Warn("balance fetch failed", "identity", address.Short(f.identity), "error", err)
	} else {
		c.metrics.Fetch(metrics.OutcomeSuccess, took)
		c.logger.Debug("balance updated", "identity", address.Short(f.identity), "lamports", lamports)
	}
	c.emit(Event{Kind: kind, Session: s, Balance: snap, Generation: f.generation})
}

func (c *Controller) sessionLocked() Session {
	s := Session{
		Status:    c.status,
		Network:   c.network,
		LastError: c.lastError.clone(),
	}
	if c.provider != nil {
		s.Provider = c.provider.Name()
	}
	if c.status == StatusConnected {
		s.Identity = c.identity
		at := c.connectedAt
		s.ConnectedAt = &at
	}
	return s
}
