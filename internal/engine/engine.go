package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MRamiBalles/KeepSolving/internal/board"
	"github.com/MRamiBalles/KeepSolving/internal/config"
	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/clock"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
	"github.com/MRamiBalles/KeepSolving/internal/platform/metrics"
	"github.com/MRamiBalles/KeepSolving/internal/pool"
)

const actorRound = "ROUND"

// Round wires one game round: board, pool, dispatcher, watcher, generator and
// the round clock. Nothing here is global; two rounds may run side by side.
type Round struct {
	ID  string
	cfg config.Round

	board      *board.Board
	pool       *pool.Pool
	dispatcher *Dispatcher
	watcher    *Watcher
	generator  *Generator
	eventLog   *events.Log
	logger     *logger.Logger
	metrics    *metrics.Collector
	clk        clock.Clock

	mu          sync.Mutex
	started     bool
	deadlineSet bool
	startedAt   time.Time
	cancel      context.CancelFunc
	group       *errgroup.Group

	over       chan struct{}
	overOnce   sync.Once
	overReason string

	shutdownOnce sync.Once
	final        *Summary
}

// Summary is the outcome of a round.
type Summary struct {
	RoundID    string    `json:"round_id"`
	Difficulty string    `json:"difficulty"`
	Score      int       `json:"score"`
	Currency   int       `json:"currency"`
	Generated  int       `json:"generated"`
	Pending    int       `json:"pending"`
	Completed  int       `json:"completed"`
	InFlight   int       `json:"in_flight"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// Snapshot is a read-only copy of the round state for renderers.
type Snapshot struct {
	RoundID          string            `json:"round_id"`
	Pending          []module.Module   `json:"pending"`
	Completed        []module.Module   `json:"completed"`
	Workers          []pool.WorkerView `json:"workers"`
	Benches          []bool            `json:"benches"`
	Score            int               `json:"score"`
	Currency         int               `json:"currency"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Over             bool              `json:"over"`
}

type roundOptions struct {
	clock     clock.Clock
	logger    *logger.Logger
	rng       *rand.Rand
	solver    pool.AutoSolver
	persister events.EventPersister
	metrics   *metrics.Collector
}

// Option customizes InitRound.
type Option func(*roundOptions)

// WithClock drives every countdown from clk.
func WithClock(clk clock.Clock) Option {
	return func(o *roundOptions) { o.clock = clk }
}

// WithLogger sets the text logger. Events are mirrored into the round log.
func WithLogger(l *logger.Logger) Option {
	return func(o *roundOptions) { o.logger = l }
}

// WithRand seeds module generation and the default auto solver.
func WithRand(r *rand.Rand) Option {
	return func(o *roundOptions) { o.rng = r }
}

// WithSolver replaces the chance-based auto resolution.
func WithSolver(s pool.AutoSolver) Option {
	return func(o *roundOptions) { o.solver = s }
}

// WithPersister mirrors every event to durable storage.
func WithPersister(p events.EventPersister) Option {
	return func(o *roundOptions) { o.persister = p }
}

// WithMetrics shares a collector instead of creating one.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *roundOptions) { o.metrics = m }
}

// InitRound validates cfg and builds a round ready to Start.
func InitRound(cfg config.Round, opts ...Option) (*Round, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to init round: %w", err)
	}

	o := roundOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.RealClock{}
	}
	if o.logger == nil {
		o.logger = logger.NewLogger()
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.solver == nil {
		o.solver = pool.NewChanceSolver(cfg.AutoSuccessChance, rand.New(rand.NewSource(o.rng.Int63())))
	}
	if o.metrics == nil {
		o.metrics = metrics.NewCollector()
	}

	id := uuid.NewString()
	eventLog := events.NewLog(cfg.LogCapacity, o.clock, o.persister)
	eventLog.SetRoundID(id)
	log := o.logger.WithRecorder(eventLog)

	b := board.New(o.clock, log)
	b.Reset(cfg.StartingCurrency)

	p := pool.New(b, pool.Options{
		Workers: cfg.WorkerCount,
		Benches: cfg.BenchCount,
		Tick:    cfg.Tick(),
		Reward:  cfg.CurrencyPerModule,
		Solver:  o.solver,
		Clock:   o.clock,
		Logger:  log,
		Metrics: o.metrics,
	})

	r := &Round{
		ID:       id,
		cfg:      cfg,
		board:    b,
		pool:     p,
		eventLog: eventLog,
		logger:   log,
		metrics:  o.metrics,
		clk:      o.clock,
		over:     make(chan struct{}),
	}
	r.dispatcher = NewDispatcher(b, p, DispatcherOptions{
		Capacity:   cfg.CommandQueueSize,
		Reward:     cfg.CurrencyPerModule,
		Clock:      o.clock,
		Logger:     log,
		Metrics:    o.metrics,
		OnShutdown: func() { r.finish("operator quit") },
	})
	r.watcher = NewWatcher(b, o.clock, cfg.Tick(), log, o.metrics)
	r.generator = NewGenerator(b, GeneratorOptions{
		Interval:       cfg.SpawnInterval(),
		TimeoutSeconds: cfg.ModuleTimeoutSec,
		Rand:           o.rng,
		Clock:          o.clock,
		Logger:         log,
		Metrics:        o.metrics,
	})

	log.Eventf(string(events.EventTypeSystem), actorRound, "round %s ready: %s, %d tedax, %d benches, %ds",
		id, cfg.Difficulty, cfg.WorkerCount, cfg.BenchCount, cfg.RoundDurationSec)
	return r, nil
}

// SetDeadline starts the countdown now. Start sets it from the config when
// it has not been set explicitly.
func (r *Round) SetDeadline(seconds int) {
	r.mu.Lock()
	r.deadlineSet = true
	r.mu.Unlock()
	r.board.SetDeadline(seconds)
}

// Start launches the workers and the background goroutines. Starting twice
// is a no-op.
func (r *Round) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startedAt = r.clk.Now()
	ctx, r.cancel = context.WithCancel(ctx)
	needDeadline := !r.deadlineSet
	r.mu.Unlock()

	if needDeadline {
		r.board.SetDeadline(r.cfg.RoundDurationSec)
	}

	r.pool.Start(ctx)

	g := new(errgroup.Group)
	g.Go(func() error { r.dispatcher.Run(ctx); return nil })
	g.Go(func() error { r.watcher.Start(ctx); return nil })
	g.Go(func() error { r.generator.Start(ctx); return nil })
	g.Go(func() error { r.runClock(ctx); return nil })

	r.mu.Lock()
	r.group = g
	r.mu.Unlock()

	r.logger.Info("Round " + r.ID + " started")
}

// Done is closed when the round is over: time ran out, the operator quit, or
// Shutdown was called.
func (r *Round) Done() <-chan struct{} {
	return r.over
}

// Submit queues a command for the dispatcher.
func (r *Round) Submit(cmd Command) bool {
	return r.dispatcher.Submit(cmd)
}

// SubmitLine parses and queues operator text.
func (r *Round) SubmitLine(line string) bool {
	return r.dispatcher.SubmitLine(line)
}

// Shutdown stops producers first, then the dispatcher, then the pool, joins
// every goroutine, records the final summary and frees the board. It is
// idempotent.
func (r *Round) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		started, cancel, group := r.started, r.cancel, r.group
		r.mu.Unlock()

		r.generator.Stop()
		r.watcher.Stop()
		if started {
			<-r.generator.Done()
			<-r.watcher.Done()
		}
		r.dispatcher.Stop()
		if started {
			<-r.dispatcher.Done()
		}
		r.pool.Close()

		if cancel != nil {
			cancel()
		}
		if group != nil {
			_ = group.Wait()
		}
		if err := r.pool.Wait(); err != nil {
			r.logger.Error(fmt.Sprintf("pool shutdown: %v", err))
		}

		r.finish("shutdown")
		s := r.collect()
		r.mu.Lock()
		r.final = &s
		r.mu.Unlock()

		r.board.Destroy()
		r.eventLog.Close()
	})
}

// Destroy releases everything the round owns. It implies Shutdown.
func (r *Round) Destroy() {
	r.Shutdown()
}

// Summary returns the final summary after Shutdown, or a live one before.
func (r *Round) Summary() Summary {
	r.mu.Lock()
	final := r.final
	r.mu.Unlock()
	if final != nil {
		return *final
	}
	return r.collect()
}

// Snapshot copies the state a renderer needs.
func (r *Round) Snapshot() Snapshot {
	over := false
	select {
	case <-r.over:
		over = true
	default:
	}
	return Snapshot{
		RoundID:          r.ID,
		Pending:          r.board.Pending(),
		Completed:        r.board.Completed(),
		Workers:          r.pool.Snapshot(),
		Benches:          r.pool.BusyBenches(),
		Score:            r.board.Score(),
		Currency:         r.board.Currency(),
		RemainingSeconds: r.board.RemainingRoundSeconds(),
		Over:             over,
	}
}

// Board exposes the round's board for read-only callers.
func (r *Round) Board() *board.Board { return r.board }

// Pool exposes the round's worker pool.
func (r *Round) Pool() *pool.Pool { return r.pool }

// Dispatcher exposes the command dispatcher.
func (r *Round) Dispatcher() *Dispatcher { return r.dispatcher }

// Events exposes the round's event log.
func (r *Round) Events() *events.Log { return r.eventLog }

// Metrics exposes the round's collector.
func (r *Round) Metrics() *metrics.Collector { return r.metrics }

// Config returns the configuration the round was built with.
func (r *Round) Config() config.Round { return r.cfg }

// runClock ends the round once the deadline has passed.
func (r *Round) runClock(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.over:
			return
		case <-ticker.C:
			if r.board.RemainingRoundSeconds() == 0 {
				r.finish("time up")
				return
			}
		}
	}
}

func (r *Round) finish(reason string) {
	r.overOnce.Do(func() {
		r.mu.Lock()
		r.overReason = reason
		r.mu.Unlock()
		close(r.over)
		r.logger.Eventf(string(events.EventTypeRoundOver), actorRound, "round over: %s (score %d)", reason, r.board.Score())
	})
}

func (r *Round) collect() Summary {
	pending, completed := r.board.Counts()

	r.mu.Lock()
	reason, startedAt := r.overReason, r.startedAt
	r.mu.Unlock()

	return Summary{
		RoundID:    r.ID,
		Difficulty: r.cfg.Difficulty,
		Score:      r.board.Score(),
		Currency:   r.board.Currency(),
		Generated:  r.generator.Generated(),
		Pending:    pending,
		Completed:  completed,
		InFlight:   r.pool.Size() - r.pool.IdleCount(),
		Reason:     reason,
		StartedAt:  startedAt,
		EndedAt:    r.clk.Now(),
	}
}
