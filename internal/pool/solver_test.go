package pool

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChanceSolverBounds(t *testing.T) {
	never := NewChanceSolver(0, rand.New(rand.NewSource(1)))
	always := NewChanceSolver(1, rand.New(rand.NewSource(1)))

	for i := 0; i < 100; i++ {
		require.False(t, never.Solve(nil))
		require.True(t, always.Solve(nil))
	}
}
