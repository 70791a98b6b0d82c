package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eapache/queue"

	"github.com/MRamiBalles/KeepSolving/internal/board"
	"github.com/MRamiBalles/KeepSolving/internal/domain/fault"
	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/clock"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
	"github.com/MRamiBalles/KeepSolving/internal/platform/metrics"
	"github.com/MRamiBalles/KeepSolving/internal/pool"
)

const actorCoord = "COORD"

// Dispatcher is the coordinator: a single goroutine that drains the command
// queue and turns each command into board pops and pool allocations. Any
// goroutine may Submit.
type Dispatcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    *queue.Queue // of Command
	capacity int
	stopped  bool

	board   *board.Board
	pool    *pool.Pool
	reward  int
	clk     clock.Clock
	logger  *logger.Logger
	metrics *metrics.Collector

	// onShutdown runs once when a Shutdown command is consumed. It must not
	// block on the dispatcher.
	onShutdown func()
	done       chan struct{}
}

// DispatcherOptions configures a dispatcher.
type DispatcherOptions struct {
	Capacity   int
	Reward     int
	Clock      clock.Clock
	Logger     *logger.Logger
	Metrics    *metrics.Collector
	OnShutdown func()
}

// NewDispatcher creates an idle dispatcher. Call Run to start consuming.
func NewDispatcher(b *board.Board, p *pool.Pool, opts DispatcherOptions) *Dispatcher {
	if opts.Capacity <= 0 {
		opts.Capacity = 64
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	d := &Dispatcher{
		queue:      queue.New(),
		capacity:   opts.Capacity,
		board:      b,
		pool:       p,
		reward:     opts.Reward,
		clk:        opts.Clock,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		onShutdown: opts.OnShutdown,
		done:       make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Submit enqueues a command without blocking. When the queue is full or the
// dispatcher has stopped the command is dropped and Submit returns false.
func (d *Dispatcher) Submit(cmd Command) bool {
	if cmd == nil {
		return false
	}

	d.mu.Lock()
	if d.stopped || d.queue.Length() >= d.capacity {
		d.mu.Unlock()
		d.metrics.RecordCommand(false)
		return false
	}
	d.queue.Add(cmd)
	d.cond.Signal()
	d.mu.Unlock()

	d.metrics.RecordCommand(true)
	return true
}

// SubmitLine parses operator text and submits the result. Malformed input is
// logged and ignored.
func (d *Dispatcher) SubmitLine(line string) bool {
	cmd, err := ParseCommand(line)
	if err != nil {
		d.metrics.RecordInvalidCommand()
		d.logger.Eventf(string(events.EventTypeCommandRejected), actorCoord, "invalid command: %v", err)
		return false
	}
	return d.Submit(cmd)
}

// Len returns the number of queued commands.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Length()
}

// Run consumes commands until Stop, ctx cancellation or a Shutdown command.
// Commands still queued at that point are discarded.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	stop := context.AfterFunc(ctx, d.Stop)
	defer stop()

	d.logger.Info("Coordinator started")
	for {
		cmd, ok := d.next()
		if !ok {
			d.logger.Info("Coordinator stopped")
			return
		}
		if _, quit := cmd.(Shutdown); quit {
			d.Stop()
			d.logger.Event(string(events.EventTypeCommand), actorCoord, "shutdown requested")
			if d.onShutdown != nil {
				d.onShutdown()
			}
			return
		}
		d.Execute(cmd)
	}
}

// Stop wakes the consumer and makes it return. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) next() (Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for !d.stopped && d.queue.Length() == 0 {
		d.cond.Wait()
	}
	if d.stopped {
		return nil, false
	}
	return d.queue.Remove().(Command), true
}

// Execute applies one command synchronously on the caller's goroutine. Run
// calls it for every dequeued command.
func (d *Dispatcher) Execute(cmd Command) {
	switch c := cmd.(type) {
	case AutoAssign:
		d.autoAssign()
	case ManualAssign:
		d.manualAssign(c)
	case ManualAssignExact:
		d.manualAssignExact(c)
	case KindAssign:
		d.kindAssign(c)
	case Designate:
		d.designate(c)
	case SolveNow:
		d.solveNow(c)
	case Shutdown:
		d.Stop()
	default:
		d.logger.Warn(fmt.Sprintf("Coordinator: unknown command %T dropped", cmd))
	}
}

func (d *Dispatcher) autoAssign() {
	m, ok := d.board.PopFront()
	if !ok {
		d.logger.Event(string(events.EventTypeCommand), actorCoord, "no module to assign")
		return
	}
	workerID, err := d.pool.AssignAuto(m)
	if err != nil {
		d.giveBack(m, err)
		return
	}
	d.logger.Eventf(string(events.EventTypeCommand), actorCoord, "%s sent to T%d", m.Label(), workerID)
}

func (d *Dispatcher) manualAssign(c ManualAssign) {
	m, ok := d.popByID(c.ModuleID)
	if !ok {
		return
	}
	m.Instruction = c.Instruction
	workerID, err := d.pool.AssignAuto(m)
	if err != nil {
		d.giveBack(m, err)
		return
	}
	d.logger.Eventf(string(events.EventTypeCommand), actorCoord, "%s sent to T%d with %q", m.Label(), workerID, c.Instruction)
}

func (d *Dispatcher) manualAssignExact(c ManualAssignExact) {
	m, ok := d.popByID(c.ModuleID)
	if !ok {
		return
	}
	m.Instruction = c.Instruction
	if err := d.pool.AssignExact(m, c.WorkerID, c.BenchID); err != nil {
		d.giveBack(m, err)
		return
	}
	d.logger.Eventf(string(events.EventTypeCommand), actorCoord, "%s sent to T%d on bench %d", m.Label(), c.WorkerID, c.BenchID)
}

func (d *Dispatcher) kindAssign(c KindAssign) {
	m, ok := d.board.PopFirstOfKind(c.Kind)
	if !ok {
		d.logger.Eventf(string(events.EventTypeCommandRejected), actorCoord, "no pending %s module", c.Kind)
		return
	}
	if err := d.pool.AssignExact(m, c.WorkerID, c.BenchID); err != nil {
		d.giveBack(m, err)
		return
	}
	d.logger.Eventf(string(events.EventTypeCommand), actorCoord, "%s sent to T%d on bench %d", m.Label(), c.WorkerID, c.BenchID)
}

func (d *Dispatcher) designate(c Designate) {
	m, ok := d.popByID(c.ModuleID)
	if !ok {
		return
	}
	m.Instruction = c.Instruction
	id, err := d.pool.AssignAnyWorker(m)
	if err != nil {
		d.giveBack(m, err)
		return
	}
	d.logger.Eventf(string(events.EventTypeCommand), actorCoord, "%s designated to T%d", m.Label(), id)
}

func (d *Dispatcher) solveNow(c SolveNow) {
	m, ok := d.popByID(c.ModuleID)
	if !ok {
		return
	}
	if m.Matches(c.Answer) {
		d.board.AddScore()
		d.board.AddCurrency(d.reward)
		d.board.MoveToCompleted(m)
		d.metrics.RecordAttempt(true, false, 0)
		d.logger.Eventf(string(events.EventTypeDefused), actorCoord, "operator defused %s (+%d)", m.Label(), d.reward)
		return
	}
	m.Penalize(0, d.clk.Now())
	d.board.Requeue(m)
	d.metrics.RecordAttempt(false, false, 0)
	d.logger.Eventf(string(events.EventTypeAttemptFailed), actorCoord, "wrong answer for %s", m.Label())
}

func (d *Dispatcher) popByID(id int) (*module.Module, bool) {
	m, ok := d.board.PopByID(id)
	if !ok {
		d.logger.Eventf(string(events.EventTypeCommandRejected), actorCoord, "M%d is not pending", id)
	}
	return m, ok
}

// giveBack requeues a module the pool refused. The operator's instruction
// does not survive a refused allocation.
func (d *Dispatcher) giveBack(m *module.Module, err error) {
	m.Instruction = ""
	d.board.Requeue(m)

	reason := "refused"
	switch {
	case errors.Is(err, fault.ErrNotFound):
		reason = "no such tedax or bench"
	case errors.Is(err, fault.ErrResourceBusy):
		reason = "no free tedax or bench"
	}
	d.logger.Eventf(string(events.EventTypeAssignFailed), actorCoord, "%s requeued: %s", m.Label(), reason)
}
