package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/MRamiBalles/KeepSolving/internal/board"
	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/clock"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
	"github.com/MRamiBalles/KeepSolving/internal/platform/metrics"
)

const actorGenerator = "GEN"

// Generator pushes a fresh random module onto the board at a fixed interval.
type Generator struct {
	board    *board.Board
	clk      clock.Clock
	interval time.Duration
	timeout  int
	logger   *logger.Logger
	metrics  *metrics.Collector

	mu     sync.Mutex
	rng    *rand.Rand
	lastID int

	stopChan chan struct{}
	stopOnce sync.Once
	doneChan chan struct{}
	doneOnce sync.Once
}

// GeneratorOptions configures a generator.
type GeneratorOptions struct {
	Interval       time.Duration
	TimeoutSeconds int
	Rand           *rand.Rand
	Clock          clock.Clock
	Logger         *logger.Logger
	Metrics        *metrics.Collector
}

// NewGenerator creates a stopped generator.
func NewGenerator(b *board.Board, opts GeneratorOptions) *Generator {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Interval <= 0 {
		opts.Interval = 1200 * time.Millisecond
	}
	return &Generator{
		board:    b,
		clk:      opts.Clock,
		interval: opts.Interval,
		timeout:  opts.TimeoutSeconds,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		rng:      opts.Rand,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start spawns one module right away and then one per interval until ctx is
// done or Stop is called. Call in a goroutine.
func (g *Generator) Start(ctx context.Context) {
	defer g.doneOnce.Do(func() { close(g.doneChan) })

	select {
	case <-ctx.Done():
		return
	case <-g.stopChan:
		return
	default:
	}
	g.Spawn()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.Spawn()
		}
	}
}

// Stop ends the spawn loop.
func (g *Generator) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
}

// Done is closed once Start has returned.
func (g *Generator) Done() <-chan struct{} {
	return g.doneChan
}

// Spawn creates one module with the next id and pushes it to the board.
func (g *Generator) Spawn() *module.Module {
	g.mu.Lock()
	g.lastID++
	m := module.New(g.lastID, module.RandomKind(g.rng), g.timeout, g.clk.Now(), g.rng)
	g.mu.Unlock()

	g.metrics.RecordGenerated()
	g.logger.Eventf(string(events.EventTypeModuleGenerated), actorGenerator, "%s generated (%s)", m.Label(), m.Kind)
	g.board.Push(m)
	return m
}

// Generated returns how many modules have been produced.
func (g *Generator) Generated() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastID
}
