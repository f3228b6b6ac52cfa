package session

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/solwave/solwave/internal/address"
	"github.com/solwave/solwave/internal/ledger"
	"github.com/solwave/solwave/internal/logging"
	"github.com/solwave/solwave/internal/wallet"
)

var (
	identityA = base58.Encode(bytes.Repeat([]byte{0x0a}, address.PublicKeyLength))
	identityB = base58.Encode(bytes.Repeat([]byte{0x0b}, address.PublicKeyLength))
)

type fakeProvider struct {
	mu              sync.Mutex
	identities      []string
	connectErr      error
	disconnectErr   error
	connectCalls    int
	disconnectCalls int
	gate            chan struct{}
	entered         chan struct{}
	disconnectGate  chan struct{}
	disconnecting   chan struct{}
}

func (p *fakeProvider) Name() string    { return "fake" }
func (p *fakeProvider) Available() bool { return true }

func (p *fakeProvider) Connect(ctx context.Context) (string, error) {
	p.mu.Lock()
	p.connectCalls++
	n := p.connectCalls
	gate, entered, err := p.gate, p.entered, p.connectErr
	id := ""
	if len(p.identities) > 0 {
		idx := n - 1
		if idx >= len(p.identities) {
			idx = len(p.identities) - 1
		}
		id = p.identities[idx]
	}
	p.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *fakeProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	p.disconnectCalls++
	gate, entered, err := p.disconnectGate, p.disconnecting, p.disconnectErr
	p.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (p *fakeProvider) setConnectErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
}

func (p *fakeProvider) calls() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls, p.disconnectCalls
}

func detectorFor(p wallet.Provider) wallet.Detector {
	return wallet.DetectorFunc(func() (wallet.Provider, bool) {
		if p == nil {
			return nil, false
		}
		return p, true
	})
}

type balanceReply struct {
	lamports uint64
	err      error
}

type balanceRequest struct {
	identity string
	reply    chan balanceReply
}

// gatedLedger hands every query to the test and ignores cancellation so
// that stale results still arrive.
type gatedLedger struct {
	requests chan balanceRequest
}

func newGatedLedger() *gatedLedger {
	return &gatedLedger{requests: make(chan balanceRequest, 16)}
}

func (l *gatedLedger) Balance(_ context.Context, identity string) (uint64, error) {
	req := balanceRequest{identity: identity, reply: make(chan balanceReply, 1)}
	l.requests <- req
	r := <-req.reply
	return r.lamports, r.err
}

func (l *gatedLedger) next(t *testing.T) balanceRequest {
	t.Helper()
	select {
	case req := <-l.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for balance query")
		return balanceRequest{}
	}
}

func (l *gatedLedger) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case req := <-l.requests:
		t.Fatalf("unexpected balance query for %s", req.identity)
	case <-time.After(50 * time.Millisecond):
	}
}

type ctxLedger struct{}

func (ctxLedger) Balance(ctx context.Context, _ string) (uint64, error) {
	<-ctx.Done()
	return 0, errors.Join(ledger.ErrBalanceFetchFailed, ctx.Err())
}

type recorder struct {
	ch chan Event
}

func record(c *Controller) *recorder {
	r := &recorder{ch: make(chan Event, 256)}
	c.Subscribe(func(ev Event) { r.ch <- ev })
	return r
}

func (r *recorder) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
			return Event{}
		}
	}
}

func newTestController(p wallet.Provider, l ledger.Ledger, opts ...Option) *Controller {
	opts = append([]Option{WithLogger(logging.Discard()), WithNetwork(ledger.NetworkDevnet)}, opts...)
	return NewController(detectorFor(p), l, opts...)
}

func assertInvariant(t *testing.T, s Session) {
	t.Helper()
	switch s.Status {
	case StatusConnected:
		if s.Identity == "" {
			t.Fatalf("connected session without identity: %+v", s)
		}
	default:
		if s.Identity != "" {
			t.Fatalf("%s session carries identity %q", s.Status, s.Identity)
		}
	}
}

func TestConnectWithoutProvider(t *testing.T) {
	c := newTestController(nil, ledger.NewInMemory())
	if c.Initialize() {
		t.Fatalf("expected no provider")
	}

	s, err := c.Connect(context.Background())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if s.Status != StatusDisconnected || s.Identity != "" {
		t.Fatalf("expected disconnected session, got %+v", s)
	}
	if c.View().ProviderAvailable {
		t.Fatalf("view must report provider unavailable")
	}
}

func TestConnectFetchesBalanceOnce(t *testing.T) {
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, identityA, 2_500_000_000)
	p := &fakeProvider{identities: []string{identityA}}
	c := newTestController(p, led)
	rec := record(c)

	if !c.Initialize() {
		t.Fatalf("expected provider to be detected")
	}
	s, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if s.Status != StatusConnected || s.Identity != identityA {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.Provider != "fake" || s.Network != ledger.NetworkDevnet {
		t.Fatalf("expected provider and network labels, got %+v", s)
	}

	ev := rec.waitFor(t, EventBalanceUpdated)
	if ev.Balance.Identity != identityA || ev.Balance.State != BalanceReady {
		t.Fatalf("unexpected balance event %+v", ev.Balance)
	}
	sol, ok := c.Balance().SOL()
	if !ok || !sol.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected displayed balance 2.5, got %s (%v)", sol, ok)
	}

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect while connected: %v", err)
	}
	_ = c.View()
	_ = c.Session()
	time.Sleep(50 * time.Millisecond)

	if calls := ledger.Calls(led, identityA); calls != 1 {
		t.Fatalf("expected exactly one balance fetch, got %d", calls)
	}
	if connects, _ := p.calls(); connects != 1 {
		t.Fatalf("expected one handshake, got %d", connects)
	}
}

func TestConcurrentConnectSingleHandshake(t *testing.T) {
	p := &fakeProvider{
		identities: []string{identityA},
		gate:       make(chan struct{}),
		entered:    make(chan struct{}, 4),
	}
	c := newTestController(p, ledger.NewInMemory())

	type result struct {
		s   Session
		err error
	}
	results := make(chan result, 2)
	connect := func() {
		s, err := c.Connect(context.Background())
		results <- result{s, err}
	}

	go connect()
	<-p.entered
	if got := c.Session().Status; got != StatusConnecting {
		t.Fatalf("expected connecting while handshake pending, got %s", got)
	}
	go connect()
	time.Sleep(20 * time.Millisecond)
	close(p.gate)

	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("connect %d: %v", i, r.err)
		}
		if r.s.Identity != identityA {
			t.Fatalf("connect %d: expected identity %s, got %+v", i, identityA, r.s)
		}
	}
	if connects, _ := p.calls(); connects != 1 {
		t.Fatalf("expected exactly one provider handshake, got %d", connects)
	}
}

func TestConnectRejectedResetsToDisconnected(t *testing.T) {
	p := &fakeProvider{identities: []string{identityA}, connectErr: errors.New("user declined")}
	c := newTestController(p, ledger.NewInMemory())
	rec := record(c)

	s, err := c.Connect(context.Background())
	if !errors.Is(err, ErrConnectRejected) {
		t.Fatalf("expected ErrConnectRejected, got %v", err)
	}
	if s.Status != StatusDisconnected || s.Identity != "" {
		t.Fatalf("expected reset to disconnected, got %+v", s)
	}
	if s.LastError == nil || s.LastError.Kind != KindConnectRejected {
		t.Fatalf("expected connect_rejected descriptor, got %+v", s.LastError)
	}

	failed := rec.waitFor(t, EventConnectFailed)
	if failed.Session.Status != StatusError || failed.Session.Identity != "" {
		t.Fatalf("expected transient error state without identity, got %+v", failed.Session)
	}

	p.setConnectErr(nil)
	s, err = c.Connect(context.Background())
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if s.Status != StatusConnected || s.LastError != nil {
		t.Fatalf("error must not persist across a new attempt, got %+v", s)
	}
}

func TestConnectTimeoutIsRejection(t *testing.T) {
	p := &fakeProvider{identities: []string{identityA}, gate: make(chan struct{})}
	c := newTestController(p, ledger.NewInMemory(), WithConnectTimeout(20*time.Millisecond))

	s, err := c.Connect(context.Background())
	if !errors.Is(err, ErrConnectRejected) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected rejected deadline error, got %v", err)
	}
	assertInvariant(t, s)
	if s.Status != StatusDisconnected {
		t.Fatalf("expected disconnected after timeout, got %s", s.Status)
	}
}

func TestConnectCallerContextOnlyBoundsWait(t *testing.T) {
	p := &fakeProvider{identities: []string{identityA}, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newTestController(p, ledger.NewInMemory())
	rec := record(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Connect(ctx)
		done <- err
	}()
	<-p.entered
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller cancellation, got %v", err)
	}

	close(p.gate)
	rec.waitFor(t, EventIdentityChanged)
	if s := c.Session(); s.Status != StatusConnected || s.Identity != identityA {
		t.Fatalf("handshake should complete for the session, got %+v", s)
	}
}

func TestProviderReturnsInvalidIdentity(t *testing.T) {
	p := &fakeProvider{identities: []string{"not-base58-0OIl"}}
	c := newTestController(p, ledger.NewInMemory())

	s, err := c.Connect(context.Background())
	if !errors.Is(err, ErrConnectRejected) || !errors.Is(err, address.ErrInvalidIdentity) {
		t.Fatalf("expected rejected invalid identity, got %v", err)
	}
	if s.LastError == nil || s.LastError.Kind != KindInvalidIdentity {
		t.Fatalf("expected invalid_identity descriptor, got %+v", s.LastError)
	}
	assertInvariant(t, s)
}

func TestDisconnectResetsEvenWhenProviderFails(t *testing.T) {
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, identityA, 42)
	p := &fakeProvider{identities: []string{identityA}, disconnectErr: errors.New("extension crashed")}
	c := newTestController(p, led)
	rec := record(c)

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec.waitFor(t, EventBalanceUpdated)

	s, err := c.Disconnect(context.Background())
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if s.Status != StatusDisconnected || s.Identity != "" {
		t.Fatalf("expected cleared session, got %+v", s)
	}
	b := c.Balance()
	if b.Identity != "" || b.HasAmount || b.State != BalanceIdle {
		t.Fatalf("expected cleared balance, got %+v", b)
	}

	if _, err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	if _, disconnects := p.calls(); disconnects != 1 {
		t.Fatalf("disconnect while disconnected must be a no-op, got %d provider calls", disconnects)
	}
}

func TestStaleBalanceDiscarded(t *testing.T) {
	led := newGatedLedger()
	p := &fakeProvider{identities: []string{identityA, identityB}}
	c := newTestController(p, led)
	rec := record(c)

	var appliedA atomic.Bool
	c.Subscribe(func(ev Event) {
		if ev.Kind == EventBalanceUpdated && ev.Balance.Identity == identityA {
			appliedA.Store(true)
		}
	})

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect A: %v", err)
	}
	reqA := led.next(t)
	if reqA.identity != identityA {
		t.Fatalf("expected fetch for A, got %s", reqA.identity)
	}

	if _, err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect B: %v", err)
	}
	reqB := led.next(t)
	if reqB.identity != identityB {
		t.Fatalf("expected fetch for B, got %s", reqB.identity)
	}
	if b := c.Balance(); b.Identity != identityB || b.HasAmount {
		t.Fatalf("snapshot for A must be gone before B resolves, got %+v", b)
	}

	reqA.reply <- balanceReply{lamports: 999}
	stale := rec.waitFor(t, EventBalanceStale)
	if stale.Balance.Identity != identityA {
		t.Fatalf("expected stale event for A, got %+v", stale.Balance)
	}
	if b := c.Balance(); b.Identity != identityB || b.State != BalanceLoading {
		t.Fatalf("stale result must not touch B's snapshot, got %+v", b)
	}

	reqB.reply <- balanceReply{lamports: 2_500_000_000}
	ev := rec.waitFor(t, EventBalanceUpdated)
	if ev.Balance.Identity != identityB || ev.Balance.Lamports != 2_500_000_000 {
		t.Fatalf("unexpected balance %+v", ev.Balance)
	}
	if appliedA.Load() {
		t.Fatalf("balance for A was applied after identity changed")
	}
}

func TestStaleBalanceArrivingLateIsIgnored(t *testing.T) {
	led := newGatedLedger()
	p := &fakeProvider{identities: []string{identityA, identityB}}
	c := newTestController(p, led)
	rec := record(c)

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect A: %v", err)
	}
	reqA := led.next(t)
	if _, err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect B: %v", err)
	}
	reqB := led.next(t)

	reqB.reply <- balanceReply{lamports: 7}
	rec.waitFor(t, EventBalanceUpdated)
	reqA.reply <- balanceReply{lamports: 999}
	rec.waitFor(t, EventBalanceStale)

	b := c.Balance()
	if b.Identity != identityB || b.Lamports != 7 || b.State != BalanceReady {
		t.Fatalf("late A result overwrote B, got %+v", b)
	}
}

func TestRefreshSkipsWhileInFlight(t *testing.T) {
	led := newGatedLedger()
	p := &fakeProvider{identities: []string{identityA}}
	c := newTestController(p, led)
	rec := record(c)

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	first := led.next(t)

	snap, err := c.RefreshBalance()
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.State != BalanceLoading {
		t.Fatalf("expected loading snapshot, got %s", snap.State)
	}
	led.expectIdle(t)

	first.reply <- balanceReply{lamports: 1}
	rec.waitFor(t, EventBalanceUpdated)

	if _, err := c.RefreshBalance(); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	second := led.next(t)
	second.reply <- balanceReply{lamports: 2}
	ev := rec.waitFor(t, EventBalanceUpdated)
	if ev.Balance.Lamports != 2 || ev.Balance.FetchedAt != 2 {
		t.Fatalf("expected second fetch result, got %+v", ev.Balance)
	}
}

func TestRefreshRequiresConnection(t *testing.T) {
	c := newTestController(&fakeProvider{identities: []string{identityA}}, ledger.NewInMemory())
	if _, err := c.RefreshBalance(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestFailedFetchKeepsLastKnownGood(t *testing.T) {
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, identityA, 100)
	c := newTestController(&fakeProvider{identities: []string{identityA}}, led)
	rec := record(c)

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec.waitFor(t, EventBalanceUpdated)

	ledger.SeedFailure(led, identityA, errors.New("rpc unavailable"))
	if _, err := c.RefreshBalance(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	rec.waitFor(t, EventBalanceFailed)

	b := c.Balance()
	if b.State != BalanceFailed {
		t.Fatalf("expected failed state, got %s", b.State)
	}
	if !b.HasAmount || b.Lamports != 100 || b.FetchedAt != 1 {
		t.Fatalf("expected last known good balance retained, got %+v", b)
	}
	if b.Err == nil || b.Err.Kind != KindBalanceFetchFailed {
		t.Fatalf("expected balance_fetch_failed descriptor, got %+v", b.Err)
	}
	if s := c.Session(); s.Status != StatusConnected {
		t.Fatalf("fetch failure must not end the session, got %s", s.Status)
	}
}

func TestFirstFetchFailureHasNoAmount(t *testing.T) {
	led := ledger.NewInMemory()
	ledger.SeedFailure(led, identityA, errors.New("rpc unavailable"))
	c := newTestController(&fakeProvider{identities: []string{identityA}}, led)
	rec := record(c)

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec.waitFor(t, EventBalanceFailed)

	b := c.Balance()
	if _, ok := b.SOL(); ok || b.HasAmount {
		t.Fatalf("a failed first fetch must not report an amount, got %+v", b)
	}
}

func TestFetchTimeoutFails(t *testing.T) {
	c := newTestController(&fakeProvider{identities: []string{identityA}}, ctxLedger{}, WithFetchTimeout(20*time.Millisecond))
	rec := record(c)

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ev := rec.waitFor(t, EventBalanceFailed)
	if ev.Balance.Err == nil || ev.Balance.Err.Kind != KindBalanceFetchFailed {
		t.Fatalf("expected fetch failure descriptor, got %+v", ev.Balance)
	}
}

func TestSessionInvariantAcrossRandomSequences(t *testing.T) {
	led := ledger.NewInMemory()
	p := &fakeProvider{identities: []string{identityA, identityB}}
	c := newTestController(p, led)
	var violations atomic.Int32
	c.Subscribe(func(ev Event) {
		s := ev.Session
		if (s.Status == StatusConnected) != (s.Identity != "") {
			violations.Add(1)
		}
	})
	defer c.Close()

	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		switch rng.Intn(3) {
		case 0:
			p.setConnectErr(nil)
			s, _ := c.Connect(ctx)
			assertInvariant(t, s)
		case 1:
			p.setConnectErr(errors.New("declined"))
			s, _ := c.Connect(ctx)
			assertInvariant(t, s)
		default:
			s, _ := c.Disconnect(ctx)
			assertInvariant(t, s)
			if s.Status != StatusDisconnected {
				t.Fatalf("disconnect left status %s", s.Status)
			}
		}
		assertInvariant(t, c.Session())
	}
	if n := violations.Load(); n > 0 {
		t.Fatalf("%d events violated the identity invariant", n)
	}
}

func TestUnsubscribe(t *testing.T) {
	c := newTestController(&fakeProvider{identities: []string{identityA}}, ledger.NewInMemory())
	var count atomic.Int32
	unsubscribe := c.Subscribe(func(Event) { count.Add(1) })
	unsubscribe()

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if count.Load() != 0 {
		t.Fatalf("unsubscribed listener received %d events", count.Load())
	}
}

func TestConnectDuringDisconnectStartsNewHandshake(t *testing.T) {
	p := &fakeProvider{
		identities:     []string{identityA, identityB},
		disconnectGate: make(chan struct{}),
		disconnecting:  make(chan struct{}, 1),
	}
	c := newTestController(p, ledger.NewInMemory())
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	disconnected := make(chan Session, 1)
	go func() {
		s, _ := c.Disconnect(context.Background())
		disconnected <- s
	}()
	<-p.disconnecting

	type result struct {
		s   Session
		err error
	}
	connected := make(chan result, 1)
	go func() {
		s, err := c.Connect(context.Background())
		connected <- result{s, err}
	}()

	select {
	case r := <-connected:
		t.Fatalf("connect returned while disconnect pending: %+v %v", r.s, r.err)
	case <-time.After(50 * time.Millisecond):
	}

	close(p.disconnectGate)
	if s := <-disconnected; s.Status != StatusDisconnected {
		t.Fatalf("expected disconnected, got %+v", s)
	}

	var r result
	select {
	case r = <-connected:
	case <-time.After(2 * time.Second):
		t.Fatalf("connect did not resume after disconnect")
	}
	if r.err != nil {
		t.Fatalf("connect after disconnect: %v", r.err)
	}
	if r.s.Status != StatusConnected || r.s.Identity != identityB {
		t.Fatalf("expected fresh session for %s, got %+v", identityB, r.s)
	}
	if s := c.Session(); s.Status != StatusConnected || s.Identity != identityB {
		t.Fatalf("expected controller connected as %s, got %+v", identityB, s)
	}
	if connects, _ := p.calls(); connects != 2 {
		t.Fatalf("expected a second handshake, got %d", connects)
	}
}

func TestConnectDuringDisconnectHonoursCallerContext(t *testing.T) {
	p := &fakeProvider{
		identities:     []string{identityA},
		disconnectGate: make(chan struct{}),
		disconnecting:  make(chan struct{}, 1),
	}
	c := newTestController(p, ledger.NewInMemory())
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	go c.Disconnect(context.Background())
	<-p.disconnecting
	defer close(p.disconnectGate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
}

func TestSnapshotsDoNotAliasControllerState(t *testing.T) {
	p := &fakeProvider{identities: []string{identityA}, connectErr: errors.New("user declined")}
	led := newGatedLedger()
	c := newTestController(p, led)

	s, _ := c.Connect(context.Background())
	if s.LastError == nil {
		t.Fatalf("expected a connect error descriptor")
	}
	s.LastError.Message = "tampered"
	s.LastError.Kind = KindBalanceFetchFailed
	if got := c.Session().LastError; got == nil || got.Message != "user declined" || got.Kind != KindConnectRejected {
		t.Fatalf("session error was mutated through a snapshot: %+v", got)
	}
	c.View().Session.LastError.Message = "tampered"
	if got := c.Session().LastError.Message; got != "user declined" {
		t.Fatalf("session error was mutated through a view: %q", got)
	}

	p.setConnectErr(nil)
	rec := record(c)
	connected, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	*connected.ConnectedAt = time.Time{}
	if at := c.Session().ConnectedAt; at == nil || at.IsZero() {
		t.Fatalf("connected_at was mutated through a snapshot: %v", at)
	}

	led.next(t).reply <- balanceReply{err: errors.New("rpc down")}
	rec.waitFor(t, EventBalanceFailed)

	b := c.Balance()
	if b.Err == nil {
		t.Fatalf("expected balance error descriptor")
	}
	b.Err.Message = "tampered"
	if got := c.Balance().Err.Message; got == "tampered" {
		t.Fatalf("balance error was mutated through a snapshot")
	}
	c.View().Balance.Err.Message = "tampered"
	if got := c.Balance().Err.Message; got == "tampered" {
		t.Fatalf("balance error was mutated through a view")
	}
}

func TestInitializeKeepsLiveProvider(t *testing.T) {
	first := &fakeProvider{identities: []string{identityA}}
	second := &renamedProvider{fakeProvider: &fakeProvider{identities: []string{identityB}}, name: "other"}
	var detections atomic.Int32
	detector := wallet.DetectorFunc(func() (wallet.Provider, bool) {
		if detections.Add(1) == 1 {
			return first, true
		}
		return second, true
	})
	c := NewController(detector, ledger.NewInMemory(), WithLogger(logging.Discard()))

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !c.Initialize() {
		t.Fatalf("expected provider to stay available")
	}
	s := c.Session()
	if s.Provider != "fake" || s.Identity != identityA {
		t.Fatalf("live provider was swapped: %+v", s)
	}
	if n := detections.Load(); n != 1 {
		t.Fatalf("expected detection to be skipped while connected, ran %d times", n)
	}

	if _, err := c.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	c.Initialize()
	if got := c.Session().Provider; got != "other" {
		t.Fatalf("expected re-detection after disconnect, got %q", got)
	}
}

type renamedProvider struct {
	*fakeProvider
	name string
}

func (p *renamedProvider) Name() string { return p.name }

type observedLedger struct {
	errs chan error
}

func (l observedLedger) Balance(ctx context.Context, _ string) (uint64, error) {
	<-ctx.Done()
	l.errs <- ctx.Err()
	return 0, errors.Join(ledger.ErrBalanceFetchFailed, ctx.Err())
}

func TestCloseCancelsInFlightFetch(t *testing.T) {
	led := observedLedger{errs: make(chan error, 1)}
	c := newTestController(&fakeProvider{identities: []string{identityA}}, led)
	rec := record(c)

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec.waitFor(t, EventBalanceLoading)
	c.Close()

	select {
	case err := <-led.errs:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected fetch context to be cancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("in-flight fetch was not cancelled by Close")
	}
	rec.waitFor(t, EventBalanceFailed)

	if _, err := c.RefreshBalance(); err != nil {
		t.Fatalf("refresh after close: %v", err)
	}
	if got := c.Balance().State; got != BalanceLoading {
		t.Fatalf("expected a new fetch after close, got %s", got)
	}
	c.Close()
}
