package engine

import (
	"context"
	"sync"
	"time"

	"github.com/MRamiBalles/KeepSolving/internal/board"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/clock"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
	"github.com/MRamiBalles/KeepSolving/internal/platform/metrics"
)

const actorWatcher = "WATCHER"

// Watcher reclaims pending modules whose timeout has run out.
//
// A reclaimed module goes back to the tail of the board with the same penalty
// a failed attempt with no elapsed work gets: its timeout drops by one second
// (never below one), its clock restarts and any instruction is cleared.
type Watcher struct {
	board   *board.Board
	clk     clock.Clock
	tick    time.Duration
	logger  *logger.Logger
	metrics *metrics.Collector

	stopChan chan struct{}
	stopOnce sync.Once
	doneChan chan struct{}
	doneOnce sync.Once
}

// NewWatcher creates a watcher that sweeps once per tick.
func NewWatcher(b *board.Board, clk clock.Clock, tick time.Duration, log *logger.Logger, m *metrics.Collector) *Watcher {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if tick <= 0 {
		tick = time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Watcher{
		board:    b,
		clk:      clk,
		tick:     tick,
		logger:   log,
		metrics:  m,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is done or Stop is called. Call in a
// goroutine.
func (w *Watcher) Start(ctx context.Context) {
	defer w.doneOnce.Do(func() { close(w.doneChan) })

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Stop ends the sweep loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// Done is closed once Start has returned.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneChan
}

// Sweep requeues every expired pending module and returns how many it moved.
func (w *Watcher) Sweep() int {
	now := w.clk.Now()
	reclaimed := 0

	for _, snap := range w.board.Pending() {
		if !snap.Expired(now) {
			continue
		}
		m, ok := w.board.PopIfExpired(snap.ID, now)
		if !ok {
			continue
		}
		m.Penalize(0, now)
		label, timeout := m.Label(), m.TimeoutSeconds
		w.board.Requeue(m)
		reclaimed++

		w.metrics.RecordExpired()
		w.logger.Eventf(string(events.EventTypeExpired), actorWatcher, "%s TIMEOUT, requeued with %ds", label, timeout)
	}
	return reclaimed
}
