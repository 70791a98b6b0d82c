// Package pool runs the tedax: a fixed set of worker goroutines that take
// bomb modules, claim a workbench, count down the module's processing time
// and hand the result back to the board.
//
// A worker moves Idle -> Busy when an allocation succeeds and back to Idle
// after the module has been handed to the board. Allocation never blocks the
// caller; a worker loaded without a bench waits for one in its own goroutine.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MRamiBalles/KeepSolving/internal/domain/fault"
	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/clock"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
	"github.com/MRamiBalles/KeepSolving/internal/platform/metrics"
)

// Board is where finished attempts go. *board.Board satisfies it.
type Board interface {
	MoveToCompleted(m *module.Module)
	Requeue(m *module.Module)
	AddScore()
	AddCurrency(amount int)
}

// Options configures a pool.
type Options struct {
	Workers int
	Benches int
	Tick    time.Duration // one unit of processing time
	Reward  int           // currency per defused module
	Solver  AutoSolver
	Clock   clock.Clock
	Logger  *logger.Logger
	Metrics *metrics.Collector
}

// Pool owns the workers and the benches.
type Pool struct {
	board   Board
	workers []*worker
	benches *Benches

	tick    time.Duration
	reward  int
	solver  AutoSolver
	clk     clock.Clock
	logger  *logger.Logger
	metrics *metrics.Collector

	group     *errgroup.Group
	done      chan struct{}
	closeOnce sync.Once
	started   bool
}

// New builds a pool. Workers do not run until Start.
func New(board Board, opts Options) *Pool {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Solver == nil {
		opts.Solver = NewChanceSolver(0.6, nil)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	p := &Pool{
		board:   board,
		workers: make([]*worker, opts.Workers),
		benches: NewBenches(opts.Benches),
		tick:    opts.Tick,
		reward:  opts.Reward,
		solver:  opts.Solver,
		clk:     opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}
	for i := range p.workers {
		p.workers[i] = newWorker(i)
	}
	return p
}

// Start launches one goroutine per worker. They stop on ctx cancellation or
// Close.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true

	g, ctx := errgroup.WithContext(ctx)
	p.group = g
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			p.run(ctx, w)
			return nil
		})
	}
	p.logger.Info(fmt.Sprintf("Pool started: %d tedax, %d benches", len(p.workers), p.benches.Count()))
}

// Close wakes every worker and every bench waiter. In-flight countdowns are
// abandoned and their modules requeued unpenalized.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.benches.Close()
	})
}

// Wait blocks until every worker goroutine has returned.
func (p *Pool) Wait() error {
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// BenchCount returns the number of benches.
func (p *Pool) BenchCount() int { return p.benches.Count() }

// AssignAuto hands m to the lowest-numbered idle worker together with the
// first free bench. On failure nothing is held and m stays with the caller.
func (p *Pool) AssignAuto(m *module.Module) (int, error) {
	if p.closed() {
		return -1, fmt.Errorf("assign %s: pool closed: %w", m.Label(), fault.ErrResourceBusy)
	}

	for _, w := range p.workers {
		if !w.reserve() {
			continue
		}
		bench, ok := p.benches.TryAcquire()
		if !ok {
			w.unreserve()
			p.failed(m, "no free bench")
			return -1, fmt.Errorf("assign %s: no free bench: %w", m.Label(), fault.ErrResourceBusy)
		}
		if !w.load(m, bench) {
			p.benches.Release(bench)
			return -1, fmt.Errorf("assign %s: pool closed: %w", m.Label(), fault.ErrResourceBusy)
		}
		p.assigned(m, w.id, bench)
		return w.id, nil
	}

	p.failed(m, "no idle tedax")
	return -1, fmt.Errorf("assign %s: no idle tedax: %w", m.Label(), fault.ErrResourceBusy)
}

// AssignExact hands m to a specific worker on a specific bench.
func (p *Pool) AssignExact(m *module.Module, workerID, benchID int) error {
	if workerID < 0 || workerID >= len(p.workers) {
		p.failed(m, fmt.Sprintf("no tedax %d", workerID))
		return fmt.Errorf("tedax %d: %w", workerID, fault.ErrNotFound)
	}
	if benchID < 0 || benchID >= p.benches.Count() {
		p.failed(m, fmt.Sprintf("no bench %d", benchID))
		return fmt.Errorf("bench %d: %w", benchID, fault.ErrNotFound)
	}
	if p.closed() {
		return fmt.Errorf("assign %s: pool closed: %w", m.Label(), fault.ErrResourceBusy)
	}

	w := p.workers[workerID]
	if !w.reserve() {
		p.failed(m, fmt.Sprintf("T%d busy", workerID))
		return fmt.Errorf("tedax %d: %w", workerID, fault.ErrResourceBusy)
	}
	if err := p.benches.TryAcquireID(benchID); err != nil {
		w.unreserve()
		p.failed(m, fmt.Sprintf("bench %d busy", benchID))
		return err
	}
	if !w.load(m, benchID) {
		p.benches.Release(benchID)
		return fmt.Errorf("assign %s: pool closed: %w", m.Label(), fault.ErrResourceBusy)
	}
	p.assigned(m, workerID, benchID)
	return nil
}

// AssignToWorker hands m to a specific worker, which then waits for any bench
// in its own goroutine.
func (p *Pool) AssignToWorker(workerID int, m *module.Module) error {
	if workerID < 0 || workerID >= len(p.workers) {
		p.failed(m, fmt.Sprintf("no tedax %d", workerID))
		return fmt.Errorf("tedax %d: %w", workerID, fault.ErrNotFound)
	}
	if p.closed() {
		p.failed(m, "pool closed")
		return fmt.Errorf("assign %s: pool closed: %w", m.Label(), fault.ErrResourceBusy)
	}

	w := p.workers[workerID]
	if !w.reserve() {
		p.failed(m, fmt.Sprintf("T%d busy", workerID))
		return fmt.Errorf("tedax %d: %w", workerID, fault.ErrResourceBusy)
	}
	if !w.load(m, -1) {
		p.failed(m, "pool closed")
		return fmt.Errorf("assign %s: pool closed: %w", m.Label(), fault.ErrResourceBusy)
	}
	p.assigned(m, workerID, -1)
	return nil
}

// AssignAnyWorker hands m to the lowest-numbered idle worker, which then
// waits for any bench in its own goroutine.
func (p *Pool) AssignAnyWorker(m *module.Module) (int, error) {
	if p.closed() {
		p.failed(m, "pool closed")
		return -1, fmt.Errorf("assign %s: pool closed: %w", m.Label(), fault.ErrResourceBusy)
	}

	for _, w := range p.workers {
		if !w.reserve() {
			continue
		}
		if !w.load(m, -1) {
			p.failed(m, "pool closed")
			return -1, fmt.Errorf("assign %s: pool closed: %w", m.Label(), fault.ErrResourceBusy)
		}
		p.assigned(m, w.id, -1)
		return w.id, nil
	}

	p.failed(m, "no idle tedax")
	return -1, fmt.Errorf("assign %s: no idle tedax: %w", m.Label(), fault.ErrResourceBusy)
}

// Snapshot returns a copy of every worker slot in id order.
func (p *Pool) Snapshot() []WorkerView {
	out := make([]WorkerView, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.view()
	}
	return out
}

// BusyBenches returns a copy of the bench busy flags.
func (p *Pool) BusyBenches() []bool {
	return p.benches.Busy()
}

// IdleCount returns how many workers are currently idle.
func (p *Pool) IdleCount() int {
	n := 0
	for _, v := range p.Snapshot() {
		if v.State == Idle {
			n++
		}
	}
	return n
}

func (p *Pool) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Pool) assigned(m *module.Module, workerID, benchID int) {
	p.metrics.RecordAssignment(true)
	if benchID < 0 {
		p.logger.Eventf(string(events.EventTypeAssigned), actor(workerID), "%s -> T%d (waiting for bench)", m.Label(), workerID)
		return
	}
	p.logger.Eventf(string(events.EventTypeAssigned), actor(workerID), "%s -> T%d on bench %d", m.Label(), workerID, benchID)
}

func (p *Pool) failed(m *module.Module, reason string) {
	p.metrics.RecordAssignment(false)
	p.logger.Eventf(string(events.EventTypeAssignFailed), "COORD", "%s not assigned: %s", m.Label(), reason)
}

func actor(workerID int) string {
	return fmt.Sprintf("T%d", workerID)
}

// run is the worker goroutine: wait for a module, process it, repeat.
func (p *Pool) run(ctx context.Context, w *worker) {
	defer p.retire(w)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-w.wake:
		}

		m, bench := w.take()
		if m == nil {
			continue
		}
		if !p.process(ctx, w, m, bench) {
			return
		}
	}
}

// retire closes the slot and returns a module that was loaded but never
// picked up.
func (p *Pool) retire(w *worker) {
	m, bench := w.retire()
	if m == nil {
		return
	}
	p.benches.Release(bench)
	p.board.Requeue(m)
}

// process runs one attempt. It returns false when the pool is shutting down.
func (p *Pool) process(ctx context.Context, w *worker, m *module.Module, bench int) bool {
	if bench < 0 {
		id, ok := p.benches.Acquire()
		if !ok {
			w.release()
			p.board.Requeue(m)
			w.clear()
			return false
		}
		bench = id
		w.setBench(bench)
		p.logger.Eventf(string(events.EventTypeBenchAcquired), actor(w.id), "T%d took bench %d for %s", w.id, bench, m.Label())
	}

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	exploded := false
	elapsed := 0
	for elapsed < m.ProcessingDuration {
		select {
		case <-ctx.Done():
			p.interrupt(w, m, bench)
			return false
		case <-p.done:
			p.interrupt(w, m, bench)
			return false
		case <-ticker.C:
		}

		elapsed++
		w.setRemaining(m.ProcessingDuration - elapsed)
		if m.Overdue(p.clk.Now()) {
			exploded = true
			m.Instruction = ""
			break
		}
	}

	var success bool
	switch {
	case exploded:
	case m.Instruction != "":
		success = m.Matches(m.Instruction)
	default:
		success = p.solver.Solve(m)
	}

	p.benches.Release(bench)
	p.metrics.RecordAttempt(success, exploded, time.Duration(elapsed)*p.tick)
	w.release()

	if success {
		p.board.AddScore()
		p.board.AddCurrency(p.reward)
		p.board.MoveToCompleted(m)
		p.logger.Eventf(string(events.EventTypeDefused), actor(w.id), "T%d defused %s (+%d)", w.id, m.Label(), p.reward)
	} else {
		m.Penalize(elapsed, p.clk.Now())
		p.board.Requeue(m)
		if exploded {
			p.logger.Eventf(string(events.EventTypeExploded), actor(w.id), "%s exploded in T%d's hands", m.Label(), w.id)
		} else {
			p.logger.Eventf(string(events.EventTypeAttemptFailed), actor(w.id), "T%d failed %s", w.id, m.Label())
		}
	}

	w.clear()
	return true
}

// interrupt abandons a countdown on shutdown. The module goes back to the
// board as it was.
func (p *Pool) interrupt(w *worker, m *module.Module, bench int) {
	p.benches.Release(bench)
	w.release()
	p.board.Requeue(m)
	w.clear()
	p.logger.Eventf(string(events.EventTypeSystem), actor(w.id), "T%d stopped, %s returned to the board", w.id, m.Label())
}
