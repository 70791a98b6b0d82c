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
)

func newWatcherRig(t *testing.T) (*Watcher, *board.Board, *clock.Fake, *events.Log, *metrics.Collector) {
	t.Helper()
	clk := clock.NewFake(start)
	ring := events.NewLog(32, clk, nil)
	log := logger.Discard().WithRecorder(ring)
	m := metrics.NewCollector()
	b := board.New(clk, log)
	return NewWatcher(b, clk, time.Millisecond, log, m), b, clk, ring, m
}

func withTimeout(id, timeout int, createdAt time.Time) *module.Module {
	return module.New(id, module.KindWires, timeout, createdAt, rand.New(rand.NewSource(int64(id))))
}

// An unassigned module with a 5s timeout left for 6s is requeued with 4s
// and a fresh creation time.
func TestWatcherRequeuesExpiredModule(t *testing.T) {
	w, b, clk, ring, m := newWatcherRig(t)

	expiring := withTimeout(1, 5, start)
	expiring.Instruction = "CUT 1"
	b.Push(expiring)
	b.Push(withTimeout(2, 30, start))

	clk.Advance(6 * time.Second)
	require.Equal(t, 1, w.Sweep())

	pending := b.Pending()
	require.Equal(t, []int{2, 1}, []int{pending[0].ID, pending[1].ID})
	require.Equal(t, 4, pending[1].TimeoutSeconds)
	require.Equal(t, start.Add(6*time.Second), pending[1].CreatedAt)
	require.Empty(t, pending[1].Instruction)

	require.EqualValues(t, 1, m.ExpiredInQueue)
	require.Equal(t, events.EventTypeExpired, ring.Tail(1)[0].Type)

	// The reset clock means the next sweep leaves it alone.
	require.Zero(t, w.Sweep())
}

func TestWatcherExpiresAtExactTimeout(t *testing.T) {
	w, b, clk, _, _ := newWatcherRig(t)
	b.Push(withTimeout(1, 5, start))

	clk.Advance(4999 * time.Millisecond)
	require.Zero(t, w.Sweep())

	clk.Advance(time.Millisecond)
	require.Equal(t, 1, w.Sweep())
}

func TestWatcherTimeoutFloor(t *testing.T) {
	w, b, clk, _, _ := newWatcherRig(t)
	b.Push(withTimeout(1, 1, start))

	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
		require.Equal(t, 1, w.Sweep())
	}
	require.Equal(t, 1, b.Pending()[0].TimeoutSeconds)
}

func TestWatcherNeverDuplicates(t *testing.T) {
	w, b, clk, _, _ := newWatcherRig(t)
	for i := 1; i <= 5; i++ {
		b.Push(withTimeout(i, 2, start))
	}

	clk.Advance(3 * time.Second)
	require.Equal(t, 5, w.Sweep())
	require.Equal(t, 5, b.Len())

	seen := map[int]bool{}
	for _, m := range b.Pending() {
		require.False(t, seen[m.ID])
		seen[m.ID] = true
	}
}

func TestWatcherLoopStops(t *testing.T) {
	w, b, clk, _, _ := newWatcherRig(t)
	b.Push(withTimeout(1, 5, start))
	clk.Advance(10 * time.Second)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		p := b.Pending()
		return len(p) == 1 && p[0].TimeoutSeconds == 4
	}, waitFor, poll)

	w.Stop()
	w.Stop()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherNilLoggerFallsBackToDiscard(t *testing.T) {
	b := board.New(clock.NewFake(start), nil)
	w := NewWatcher(b, nil, 0, nil, nil)
	b.Push(withTimeout(1, 5, start.Add(-time.Minute)))

	require.NotPanics(t, func() { require.Equal(t, 1, w.Sweep()) })
	require.Equal(t, 4, b.Pending()[0].TimeoutSeconds)
}

// A worker-like owner keeps popping, penalizing and requeueing the same
// module while the watcher sweeps it. Run with -race.
func TestWatcherSweepDoesNotRaceOwner(t *testing.T) {
	w, b, clk, _, _ := newWatcherRig(t)
	b.Push(withTimeout(1, 3, start))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if m, ok := b.PopFront(); ok {
				m.Penalize(0, clk.Now())
				b.Requeue(m)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		clk.Advance(2 * time.Second)
		w.Sweep()
	}
	close(stop)
	<-done

	require.Equal(t, 1, b.Len())
}
