package pool

import (
	"sync"

	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
)

// State is a worker's availability.
type State int

const (
	Idle State = iota
	Busy
)

func (s State) String() string {
	if s == Busy {
		return "BUSY"
	}
	return "IDLE"
}

// MarshalText renders the state by name in snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// worker is one tedax. The slot fields are guarded by mu; the module itself
// is only touched by the worker goroutine once assigned.
type worker struct {
	id   int
	wake chan struct{}

	mu        sync.Mutex
	state     State
	current   *module.Module
	bench     int
	moduleID  int
	kind      module.Kind
	remaining int
	retired   bool
}

func newWorker(id int) *worker {
	return &worker{
		id:    id,
		wake:  make(chan struct{}, 1),
		bench: -1,
	}
}

// reserve marks an idle worker busy before anything is handed over. It
// returns false when the worker is already taken.
func (w *worker) reserve() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Idle {
		return false
	}
	w.state = Busy
	return true
}

// unreserve undoes reserve when the allocation could not be completed.
func (w *worker) unreserve() {
	w.mu.Lock()
	w.state = Idle
	w.mu.Unlock()
}

// load fills a reserved slot and wakes the worker goroutine. It fails once
// the goroutine has retired, leaving m with the caller.
func (w *worker) load(m *module.Module, bench int) bool {
	w.mu.Lock()
	if w.retired {
		w.state = Idle
		w.mu.Unlock()
		return false
	}
	w.current = m
	w.bench = bench
	w.moduleID = m.ID
	w.kind = m.Kind
	w.remaining = m.ProcessingDuration
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// retire stops the slot from accepting modules and returns whatever was
// loaded but not yet picked up.
func (w *worker) retire() (*module.Module, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.retired = true
	m, bench := w.current, w.bench
	w.current = nil
	w.bench = -1
	w.moduleID = 0
	w.kind = ""
	w.remaining = 0
	w.state = Idle
	return m, bench
}

// take returns the loaded module and its pre-assigned bench, if any.
func (w *worker) take() (*module.Module, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.bench
}

func (w *worker) setBench(bench int) {
	w.mu.Lock()
	w.bench = bench
	w.mu.Unlock()
}

func (w *worker) setRemaining(seconds int) {
	w.mu.Lock()
	w.remaining = seconds
	w.mu.Unlock()
}

// release drops the module from the slot before it is handed back, so a
// snapshot never shows it in two places. The worker stays Busy until clear.
func (w *worker) release() {
	w.mu.Lock()
	w.current = nil
	w.bench = -1
	w.moduleID = 0
	w.kind = ""
	w.remaining = 0
	w.mu.Unlock()
}

// clear empties the slot and returns the worker to Idle.
func (w *worker) clear() {
	w.mu.Lock()
	w.current = nil
	w.bench = -1
	w.moduleID = 0
	w.kind = ""
	w.remaining = 0
	w.state = Idle
	w.mu.Unlock()
}

// WorkerView is a read-only copy of one worker's slot.
type WorkerView struct {
	ID               int         `json:"id"`
	State            State       `json:"state"`
	ModuleID         int         `json:"module_id,omitempty"`
	Kind             module.Kind `json:"kind,omitempty"`
	BenchID          int         `json:"bench_id"`
	RemainingSeconds int         `json:"remaining_seconds"`
}

func (w *worker) view() WorkerView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerView{
		ID:               w.id,
		State:            w.state,
		ModuleID:         w.moduleID,
		Kind:             w.kind,
		BenchID:          w.bench,
		RemainingSeconds: w.remaining,
	}
}
