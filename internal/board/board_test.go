package board

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
	"github.com/MRamiBalles/KeepSolving/internal/events"
	"github.com/MRamiBalles/KeepSolving/internal/platform/clock"
	"github.com/MRamiBalles/KeepSolving/internal/platform/logger"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBoard(t *testing.T) (*Board, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(start)
	return New(clk, logger.Discard()), clk
}

func mod(id int, kind module.Kind) *module.Module {
	return module.New(id, kind, 30, start, rand.New(rand.NewSource(int64(id))))
}

func ids(ms []module.Module) []int {
	out := make([]int, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestPushPopFrontFIFO(t *testing.T) {
	b, _ := newTestBoard(t)

	_, ok := b.PopFront()
	require.False(t, ok, "empty board must not pop")

	for i := 1; i <= 3; i++ {
		b.Push(mod(i, module.KindWires))
	}
	require.Equal(t, 3, b.Len())

	for want := 1; want <= 3; want++ {
		m, ok := b.PopFront()
		require.True(t, ok)
		require.Equal(t, want, m.ID)
	}
	require.Zero(t, b.Len())
}

func TestPopByIDPreservesOrder(t *testing.T) {
	b, _ := newTestBoard(t)
	for i := 1; i <= 5; i++ {
		b.Push(mod(i, module.KindWires))
	}

	m, ok := b.PopByID(3)
	require.True(t, ok)
	require.Equal(t, 3, m.ID)
	require.Equal(t, []int{1, 2, 4, 5}, ids(b.Pending()))

	_, ok = b.PopByID(42)
	require.False(t, ok)
	require.Equal(t, []int{1, 2, 4, 5}, ids(b.Pending()))
}

func TestPopFirstOfKind(t *testing.T) {
	b, _ := newTestBoard(t)
	b.Push(mod(1, module.KindWires))
	b.Push(mod(2, module.KindPassword))
	b.Push(mod(3, module.KindButton))
	b.Push(mod(4, module.KindPassword))

	m, ok := b.PopFirstOfKind(module.KindPassword)
	require.True(t, ok)
	require.Equal(t, 2, m.ID)
	require.Equal(t, []int{1, 3, 4}, ids(b.Pending()))

	b.PopFirstOfKind(module.KindButton)
	_, ok = b.PopFirstOfKind(module.KindButton)
	require.False(t, ok)
}

func TestRequeueGoesToTail(t *testing.T) {
	b, _ := newTestBoard(t)
	b.Push(mod(1, module.KindWires))
	b.Push(mod(2, module.KindWires))

	m, _ := b.PopFront()
	b.Requeue(m)

	require.Equal(t, []int{2, 1}, ids(b.Pending()))
}

func TestPendingIsACopy(t *testing.T) {
	b, _ := newTestBoard(t)
	b.Push(mod(1, module.KindWires))

	snap := b.Pending()
	snap[0].Instruction = "CUT 9"
	snap[0].TimeoutSeconds = 1

	m, _ := b.PopFront()
	require.Empty(t, m.Instruction)
	require.Equal(t, 30, m.TimeoutSeconds)
}

func TestCompletedMostRecentFirst(t *testing.T) {
	b, _ := newTestBoard(t)
	b.MoveToCompleted(mod(1, module.KindWires))
	b.MoveToCompleted(mod(2, module.KindButton))
	b.MoveToCompleted(mod(3, module.KindPassword))
	b.MoveToCompleted(nil)

	require.Equal(t, []int{3, 2, 1}, ids(b.Completed()))
	pending, completed := b.Counts()
	require.Zero(t, pending)
	require.Equal(t, 3, completed)
}

func TestScoreAndCurrency(t *testing.T) {
	b, _ := newTestBoard(t)
	b.Reset(5)
	require.Equal(t, 5, b.Currency())

	b.AddScore()
	b.AddScore()
	b.AddCurrency(10)

	require.Equal(t, 2, b.Score())
	require.Equal(t, 15, b.Currency())

	b.Reset(0)
	require.Zero(t, b.Score())
	require.Zero(t, b.Currency())
}

func TestRemainingRoundSeconds(t *testing.T) {
	b, clk := newTestBoard(t)
	require.Zero(t, b.RemainingRoundSeconds(), "no deadline yet")

	b.SetDeadline(10)
	require.Equal(t, 10, b.RemainingRoundSeconds())

	clk.Advance(3500 * time.Millisecond)
	require.Equal(t, 7, b.RemainingRoundSeconds())

	clk.Advance(20 * time.Second)
	require.Zero(t, b.RemainingRoundSeconds())
}

func TestDestroyLogsAndEmpties(t *testing.T) {
	clk := clock.NewFake(start)
	ring := events.NewLog(16, clk, nil)
	b := New(clk, logger.Discard().WithRecorder(ring))

	b.Push(mod(1, module.KindWires))
	b.MoveToCompleted(mod(2, module.KindWires))
	b.Destroy()

	pending, completed := b.Counts()
	require.Zero(t, pending)
	require.Zero(t, completed)

	tail := ring.Tail(1)
	require.Len(t, tail, 1)
	require.Equal(t, events.EventTypeSystem, tail[0].Type)
	require.Contains(t, tail[0].Message, "1 pending, 1 completed")
}

func TestConcurrentPushPop(t *testing.T) {
	b, _ := newTestBoard(t)

	const producers, perProducer = 4, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Push(mod(p*perProducer+i+1, module.KindWires))
			}
		}(p)
	}

	seen := make(map[int]bool)
	var mu sync.Mutex
	for c := 0; c < 2; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if m, ok := b.PopFront(); ok {
					mu.Lock()
					seen[m.ID] = true
					mu.Unlock()
					b.MoveToCompleted(m)
				}
			}
		}()
	}
	wg.Wait()

	pending, completed := b.Counts()
	require.Equal(t, producers*perProducer, pending+completed)
	require.Len(t, seen, completed)
}

func TestNilLoggerFallsBackToDiscard(t *testing.T) {
	b := New(nil, nil)
	require.NotPanics(t, func() {
		b.Push(mod(1, module.KindWires))
		m, ok := b.PopFront()
		require.True(t, ok)
		b.Requeue(m)
		b.Destroy()
	})
}

// Two owners in turn pop a module, penalize it and hand it back while the
// board logs each hand-off. Run with -race.
func TestRequeueLoggingDoesNotRaceNextOwner(t *testing.T) {
	clk := clock.NewFake(start)
	ring := events.NewLog(64, clk, nil)
	b := New(clk, logger.Discard().WithRecorder(ring))
	b.Requeue(mod(1, module.KindWires))

	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				m, ok := b.PopFront()
				if !ok {
					continue
				}
				m.Penalize(0, clk.Now())
				b.Requeue(m)
			}
		}()
	}
	wg.Wait()

	pending := b.Pending()
	require.Len(t, pending, 1)
	require.GreaterOrEqual(t, pending[0].TimeoutSeconds, 1)
}
