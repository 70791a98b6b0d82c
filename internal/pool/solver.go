package pool

import (
	"math/rand"
	"sync"
	"time"

	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
)

// AutoSolver decides the outcome of an attempt that carries no operator
// instruction.
type AutoSolver interface {
	Solve(m *module.Module) bool
}

// SolverFunc adapts a function to AutoSolver.
type SolverFunc func(m *module.Module) bool

// Solve calls f(m).
func (f SolverFunc) Solve(m *module.Module) bool { return f(m) }

// ChanceSolver succeeds with a fixed probability.
type ChanceSolver struct {
	mu     sync.Mutex
	rng    *rand.Rand
	chance float64
}

// NewChanceSolver returns a solver that succeeds with probability chance. A
// nil rng is seeded from the wall clock.
func NewChanceSolver(chance float64, rng *rand.Rand) *ChanceSolver {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ChanceSolver{rng: rng, chance: chance}
}

// Solve rolls once. Safe for concurrent workers.
func (s *ChanceSolver) Solve(*module.Module) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.chance
}
