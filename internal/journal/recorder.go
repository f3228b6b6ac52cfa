package journal

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solwave/solwave/internal/address"
	"github.com/solwave/solwave/internal/session"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 2 * time.Second
)

// Recorder journals session events. Observe never blocks the controller;
// records are written by a single background goroutine in arrival order.
type Recorder struct {
	repo   Repository
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Record
	done   chan struct{}
}

// NewRecorder starts a recorder writing to repo.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan Record, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Observe is a session.Listener.
func (r *Recorder) Observe(ev session.Event) {
	rec, ok := FromEvent(ev)
	if !ok {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("journal queue full, dropping event", "kind", rec.Kind)
	}
}

// Close stops accepting events and waits until queued records are written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.repo.Append(ctx, rec); err != nil {
			r.logger.Warn("journal append failed", "kind", rec.Kind, "error", err)
		}
		cancel()
	}
}

// FromEvent maps a session event to a journal record. Loading transitions
// are not journaled.
func FromEvent(ev session.Event) (Record, bool) {
	rec := Record{
		ID:         uuid.New(),
		Kind:       string(ev.Kind),
		Identity:   ev.Session.Identity,
		Network:    ev.Session.Network,
		Generation: ev.Generation,
		At:         ev.At.UTC(),
	}

	switch ev.Kind {
	case session.EventBalanceLoading:
		return Record{}, false
	case session.EventStatusChanged:
		rec.Detail = string(ev.Session.Status)
	case session.EventIdentityChanged:
		rec.Detail = address.Short(ev.PreviousIdentity) + " -> " + address.Short(ev.Session.Identity)
	case session.EventConnectFailed:
		if ev.Session.LastError != nil {
			rec.Detail = ev.Session.LastError.Message
		}
	case session.EventBalanceUpdated:
		rec.Identity = ev.Balance.Identity
		rec.Detail = strconv.FormatUint(ev.Balance.Lamports, 10)
	case session.EventBalanceFailed:
		rec.Identity = ev.Balance.Identity
		if ev.Balance.Err != nil {
			rec.Detail = ev.Balance.Err.Message
		}
	case session.EventBalanceStale:
		rec.Identity = ev.Balance.Identity
		rec.Detail = "discarded"
	}
	return rec, true
}
