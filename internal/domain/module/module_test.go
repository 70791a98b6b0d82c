package module

import (
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewSolutionGrammar(t *testing.T) {
	grammar := map[Kind]*regexp.Regexp{
		KindWires:    regexp.MustCompile(`^CUT [1-3]$`),
		KindButton:   regexp.MustCompile(`^(RED|BLUE|GREEN|YELLOW) (HOLD|PRESS|DOUBLE)$`),
		KindPassword: regexp.MustCompile(`^WORD (FIRE|WATER|EARTH|WIND|VOID)$`),
	}
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		kind := RandomKind(r)
		m := New(i+1, kind, 30, t0, r)

		require.Equal(t, kind, m.Kind)
		require.Regexp(t, grammar[kind], m.Solution)
		def := Registry[kind]
		require.GreaterOrEqual(t, m.ProcessingDuration, def.MinDuration)
		require.LessOrEqual(t, m.ProcessingDuration, def.MaxDuration)
		require.Equal(t, 30, m.TimeoutSeconds)
		require.Empty(t, m.Instruction)
	}
}

func TestWiresFasterThanPasswords(t *testing.T) {
	require.Less(t, Registry[KindWires].MaxDuration, Registry[KindPassword].MinDuration)
}

func TestMatchesIsCaseInsensitive(t *testing.T) {
	m := &Module{Solution: "CUT 2"}

	require.True(t, m.Matches("cut 2"))
	require.True(t, m.Matches("  Cut 2 "))
	require.False(t, m.Matches("cut 3"))
	require.False(t, m.Matches(""))
}

func TestPenalizeShrinksTimeoutAndResetsCreation(t *testing.T) {
	m := &Module{TimeoutSeconds: 20, CreatedAt: t0, Instruction: "RED HOLD"}
	later := t0.Add(9 * time.Second)

	m.Penalize(4, later)

	require.Equal(t, 16, m.TimeoutSeconds)
	require.Equal(t, later, m.CreatedAt)
	require.Empty(t, m.Instruction)
}

func TestPenalizeMinimumReductionAndFloor(t *testing.T) {
	m := &Module{TimeoutSeconds: 5, CreatedAt: t0}
	m.Penalize(0, t0)
	require.Equal(t, 4, m.TimeoutSeconds)

	m.TimeoutSeconds = 3
	m.Penalize(10, t0)
	require.Equal(t, 1, m.TimeoutSeconds)

	m.Penalize(1, t0)
	require.Equal(t, 1, m.TimeoutSeconds)
}

func TestExpiredVersusOverdue(t *testing.T) {
	m := &Module{TimeoutSeconds: 5, CreatedAt: t0}
	at := t0.Add(5 * time.Second)

	require.True(t, m.Expired(at))
	require.False(t, m.Overdue(at))
	require.True(t, m.Overdue(at.Add(time.Millisecond)))
	require.Equal(t, 0, m.SecondsLeft(at))
}

func TestKindFromLetter(t *testing.T) {
	k, ok := KindFromLetter('W')
	require.True(t, ok)
	require.Equal(t, KindWires, k)

	k, ok = KindFromLetter('p')
	require.True(t, ok)
	require.Equal(t, KindPassword, k)

	_, ok = KindFromLetter('z')
	require.False(t, ok)
}
