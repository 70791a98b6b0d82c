package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/KeepSolving/internal/board"
	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/clock"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
	"github.com/MRamiBalles/KeepSolving/internal/platform/metrics"
	"github.com/MRamiBalles/KeepSolving/internal/pool"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	waitFor = 2 * time.Second
	poll    = 2 * time.Millisecond
)

type rig struct {
	board      *board.Board
	pool       *pool.Pool
	dispatcher *Dispatcher
	clk        *clock.Fake
	ring       *events.Log
	metrics    *metrics.Collector
}

func newRig(t *testing.T, workers, benches int, tick time.Duration, solver pool.AutoSolver) *rig {
	t.Helper()

	clk := clock.NewFake(start)
	ring := events.NewLog(128, clk, nil)
	log := logger.Discard().WithRecorder(ring)
	m := metrics.NewCollector()
	b := board.New(clk, log)

	p := pool.New(b, pool.Options{
		Workers: workers,
		Benches: benches,
		Tick:    tick,
		Reward:  10,
		Solver:  solver,
		Clock:   clk,
		Logger:  log,
		Metrics: m,
	})
	p.Start(context.Background())
	t.Cleanup(func() {
		p.Close()
		_ = p.Wait()
	})

	d := NewDispatcher(b, p, DispatcherOptions{
		Capacity: 4,
		Reward:   10,
		Clock:    clk,
		Logger:   log,
		Metrics:  m,
	})
	return &rig{board: b, pool: p, dispatcher: d, clk: clk, ring: ring, metrics: m}
}

func (r *rig) push(ids ...int) []*module.Module {
	out := make([]*module.Module, len(ids))
	for i, id := range ids {
		m := module.New(id, module.Kinds[id%len(module.Kinds)], 30, start, rand.New(rand.NewSource(int64(id))))
		r.board.Push(m)
		out[i] = m
	}
	return out
}

func pendingIDs(b *board.Board) []int {
	var out []int
	for _, m := range b.Pending() {
		out = append(out, m.ID)
	}
	return out
}

func never(*module.Module) bool  { return false }
func always(*module.Module) bool { return true }

func TestAutoAssignThreeModulesTwoWorkers(t *testing.T) {
	r := newRig(t, 2, 2, time.Hour, pool.SolverFunc(never))
	r.push(1, 2, 3)

	for i := 0; i < 3; i++ {
		r.dispatcher.Execute(AutoAssign{})
	}

	views := r.pool.Snapshot()
	require.ElementsMatch(t, []int{1, 2}, []int{views[0].ModuleID, views[1].ModuleID})
	require.NotEqual(t, views[0].BenchID, views[1].BenchID)
	require.Equal(t, []int{3}, pendingIDs(r.board))
}

func TestAutoAssignOnEmptyBoard(t *testing.T) {
	r := newRig(t, 1, 1, time.Hour, pool.SolverFunc(never))

	r.dispatcher.Execute(AutoAssign{})

	require.Equal(t, 1, r.pool.IdleCount())
	require.Contains(t, r.ring.Tail(1)[0].Message, "no module to assign")
}

func TestManualAssignCarriesInstruction(t *testing.T) {
	r := newRig(t, 1, 1, time.Millisecond, pool.SolverFunc(never))
	ms := r.push(1, 2)
	ms[1].Solution = "CUT 2"

	r.dispatcher.Execute(ManualAssign{ModuleID: 2, Instruction: "cut 2"})

	require.Eventually(t, func() bool {
		return r.board.Score() == 1 && r.pool.IdleCount() == 1
	}, waitFor, poll)
	require.Equal(t, 2, r.board.Completed()[0].ID)
	require.Equal(t, []int{1}, pendingIDs(r.board))
}

func TestManualAssignMissingModuleIsNoop(t *testing.T) {
	r := newRig(t, 1, 1, time.Hour, pool.SolverFunc(never))
	r.push(1)

	r.dispatcher.Execute(ManualAssign{ModuleID: 99, Instruction: "CUT 1"})

	require.Equal(t, []int{1}, pendingIDs(r.board))
	require.Equal(t, 1, r.pool.IdleCount())
	require.Equal(t, events.EventTypeCommandRejected, r.ring.Tail(1)[0].Type)
}

func TestManualExactOnBusyWorkerRequeues(t *testing.T) {
	r := newRig(t, 2, 2, time.Hour, pool.SolverFunc(never))
	r.push(1, 2, 3)

	r.dispatcher.Execute(ManualAssignExact{ModuleID: 1, WorkerID: 0, BenchID: 0})
	busy := r.pool.Snapshot()[0]
	require.Equal(t, 1, busy.ModuleID)

	r.dispatcher.Execute(ManualAssignExact{ModuleID: 2, WorkerID: 0, BenchID: 1, Instruction: "RED HOLD"})

	require.Equal(t, busy, r.pool.Snapshot()[0], "busy worker must not change")
	require.Equal(t, pool.Idle, r.pool.Snapshot()[1].State)
	require.Equal(t, []bool{true, false}, r.pool.BusyBenches())

	pending := r.board.Pending()
	require.Equal(t, []int{3, 2}, []int{pending[0].ID, pending[1].ID}, "refused module goes to the tail")
	require.Empty(t, pending[1].Instruction)
	require.Equal(t, 30, pending[1].TimeoutSeconds, "a refused allocation is not a failed attempt")
	require.True(t, hasEvent(r.ring, events.EventTypeAssignFailed))
}

func TestManualExactUnknownBench(t *testing.T) {
	r := newRig(t, 2, 2, time.Hour, pool.SolverFunc(never))
	r.push(1)

	r.dispatcher.Execute(ManualAssignExact{ModuleID: 1, WorkerID: 0, BenchID: 9})

	require.Equal(t, []int{1}, pendingIDs(r.board))
	require.Equal(t, 2, r.pool.IdleCount())
}

func TestKindAssignPicksOldestOfKind(t *testing.T) {
	r := newRig(t, 2, 2, time.Hour, pool.SolverFunc(never))
	// ids 3 and 6 are wires, 4 is a button.
	r.push(3, 4, 6)

	r.dispatcher.Execute(KindAssign{WorkerID: 1, Kind: module.KindWires, BenchID: 1})

	view := r.pool.Snapshot()[1]
	require.Equal(t, 3, view.ModuleID)
	require.Equal(t, 1, view.BenchID)
	require.Equal(t, []int{4, 6}, pendingIDs(r.board))

	r.dispatcher.Execute(KindAssign{WorkerID: 0, Kind: module.KindPassword, BenchID: 0})
	require.Equal(t, []int{4, 6}, pendingIDs(r.board))
	require.Equal(t, pool.Idle, r.pool.Snapshot()[0].State)
}

func TestDesignateUsesFirstIdleWorker(t *testing.T) {
	r := newRig(t, 2, 1, time.Hour, pool.SolverFunc(never))
	r.push(1, 2, 3)

	r.dispatcher.Execute(Designate{ModuleID: 2})
	r.dispatcher.Execute(Designate{ModuleID: 3})
	r.dispatcher.Execute(Designate{ModuleID: 1})

	views := r.pool.Snapshot()
	require.Equal(t, 2, views[0].ModuleID)
	require.Equal(t, 3, views[1].ModuleID)
	require.Equal(t, []int{1}, pendingIDs(r.board))

	// One bench for two designated workers: exactly one of them holds it.
	require.Eventually(t, func() bool {
		v := r.pool.Snapshot()
		return (v[0].BenchID == 0) != (v[1].BenchID == 0)
	}, waitFor, poll)
}

func TestSolveNow(t *testing.T) {
	r := newRig(t, 1, 1, time.Hour, pool.SolverFunc(never))
	ms := r.push(1, 2)
	ms[0].Solution = "WORD FIRE"

	r.dispatcher.Execute(SolveNow{ModuleID: 1, Answer: "word fire"})
	require.Equal(t, 1, r.board.Score())
	require.Equal(t, 10, r.board.Currency())
	require.Equal(t, 1, r.board.Completed()[0].ID)

	r.clk.Advance(5 * time.Second)
	r.dispatcher.Execute(SolveNow{ModuleID: 2, Answer: "definitely wrong"})
	pending := r.board.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, 29, pending[0].TimeoutSeconds)
	require.Equal(t, start.Add(5*time.Second), pending[0].CreatedAt)
	require.Equal(t, 1, r.board.Score())
}

func TestSubmitDropsWhenFull(t *testing.T) {
	r := newRig(t, 1, 1, time.Hour, pool.SolverFunc(never))

	for i := 0; i < 4; i++ {
		require.True(t, r.dispatcher.Submit(AutoAssign{}))
	}
	require.False(t, r.dispatcher.Submit(AutoAssign{}))
	require.Equal(t, 4, r.dispatcher.Len())
	require.EqualValues(t, 4, r.metrics.CommandsAccepted)
	require.EqualValues(t, 1, r.metrics.CommandsDropped)
}

func TestSubmitLineIgnoresGarbage(t *testing.T) {
	r := newRig(t, 1, 1, time.Hour, pool.SolverFunc(never))

	require.False(t, r.dispatcher.SubmitLine("launch the rockets"))
	require.Zero(t, r.dispatcher.Len())
	require.EqualValues(t, 1, r.metrics.InvalidCommands)
	require.Equal(t, events.EventTypeCommandRejected, r.ring.Tail(1)[0].Type)

	require.True(t, r.dispatcher.SubmitLine("a"))
	require.Equal(t, 1, r.dispatcher.Len())
}

func TestRunDrainsInOrderAndStops(t *testing.T) {
	r := newRig(t, 2, 2, time.Hour, pool.SolverFunc(never))
	r.push(1, 2, 3)

	go r.dispatcher.Run(context.Background())

	require.True(t, r.dispatcher.SubmitLine("x 3 1 1"))
	require.True(t, r.dispatcher.SubmitLine("a"))

	require.Eventually(t, func() bool {
		return r.pool.IdleCount() == 0
	}, waitFor, poll)
	views := r.pool.Snapshot()
	require.Equal(t, 1, views[0].ModuleID)
	require.Equal(t, 3, views[1].ModuleID)

	r.dispatcher.Stop()
	select {
	case <-r.dispatcher.Done():
	case <-time.After(waitFor):
		t.Fatal("dispatcher did not stop")
	}
	require.False(t, r.dispatcher.Submit(AutoAssign{}), "stopped dispatcher accepts nothing")
}

func TestShutdownCommandEndsRun(t *testing.T) {
	r := newRig(t, 1, 1, time.Hour, pool.SolverFunc(never))
	quit := make(chan struct{})
	r.dispatcher.onShutdown = func() { close(quit) }

	go r.dispatcher.Run(context.Background())
	require.True(t, r.dispatcher.SubmitLine("q"))

	select {
	case <-quit:
	case <-time.After(waitFor):
		t.Fatal("shutdown callback not called")
	}
	<-r.dispatcher.Done()
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r := newRig(t, 1, 1, time.Hour, pool.SolverFunc(never))
	ctx, cancel := context.WithCancel(context.Background())

	go r.dispatcher.Run(ctx)
	cancel()

	select {
	case <-r.dispatcher.Done():
	case <-time.After(waitFor):
		t.Fatal("dispatcher ignored cancellation")
	}
}

func hasEvent(ring *events.Log, typ events.EventType) bool {
	for _, e := range ring.Snapshot() {
		if e.Type == typ {
			return true
		}
	}
	return false
}
