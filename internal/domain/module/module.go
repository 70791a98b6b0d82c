// Package module defines the bomb module: the unit of work routed through the
// board and the worker pool.
// This package is PURE and must NOT import any infrastructure packages.
package module

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Kind represents the kind of bomb module.
type Kind string

const (
	KindWires    Kind = "WIRES"
	KindButton   Kind = "BUTTON"
	KindPassword Kind = "PASSWORD"
)

// Kinds lists every kind in generation order.
var Kinds = []Kind{KindWires, KindButton, KindPassword}

// Definition provides metadata about a module kind.
type Definition struct {
	Name        string
	Letter      byte // Operator shorthand
	MinDuration int  // Seconds of bench work, inclusive
	MaxDuration int
	solve       func(r *rand.Rand) string
}

var (
	buttonColors  = []string{"RED", "BLUE", "GREEN", "YELLOW"}
	buttonActions = []string{"HOLD", "PRESS", "DOUBLE"}
	passwords     = []string{"FIRE", "WATER", "EARTH", "WIND", "VOID"}
)

// Registry contains all known kinds and their properties.
// Wires are the quickest to defuse, passwords the slowest.
var Registry = map[Kind]Definition{
	KindWires: {
		Name:        "Wires",
		Letter:      'w',
		MinDuration: 3,
		MaxDuration: 5,
		solve: func(r *rand.Rand) string {
			return fmt.Sprintf("CUT %d", r.Intn(3)+1)
		},
	},
	KindButton: {
		Name:        "Button",
		Letter:      'b',
		MinDuration: 5,
		MaxDuration: 7,
		solve: func(r *rand.Rand) string {
			return buttonColors[r.Intn(len(buttonColors))] + " " + buttonActions[r.Intn(len(buttonActions))]
		},
	},
	KindPassword: {
		Name:        "Password",
		Letter:      'p',
		MinDuration: 7,
		MaxDuration: 10,
		solve: func(r *rand.Rand) string {
			return "WORD " + passwords[r.Intn(len(passwords))]
		},
	},
}

// KindFromLetter resolves the operator shorthand letter (case-insensitive).
func KindFromLetter(letter byte) (Kind, bool) {
	if letter >= 'A' && letter <= 'Z' {
		letter += 'a' - 'A'
	}
	for _, k := range Kinds {
		if Registry[k].Letter == letter {
			return k, true
		}
	}
	return "", false
}

// RandomKind picks a kind uniformly.
func RandomKind(r *rand.Rand) Kind {
	return Kinds[r.Intn(len(Kinds))]
}

// Module is one bomb module. At any instant it is owned by exactly one of the
// board's pending list, a worker slot, or the board's completed list.
type Module struct {
	ID                 int       `json:"id"`
	Kind               Kind      `json:"kind"`
	ProcessingDuration int       `json:"processing_duration"` // seconds
	CreatedAt          time.Time `json:"created_at"`
	TimeoutSeconds     int       `json:"timeout_seconds"`
	Solution           string    `json:"-"`
	Instruction        string    `json:"instruction,omitempty"`
}

// New creates a module of the given kind with a kind-dependent duration and a
// freshly generated solution.
func New(id int, kind Kind, timeoutSeconds int, now time.Time, r *rand.Rand) *Module {
	def, ok := Registry[kind]
	if !ok {
		kind = KindWires
		def = Registry[kind]
	}
	return &Module{
		ID:                 id,
		Kind:               kind,
		ProcessingDuration: def.MinDuration + r.Intn(def.MaxDuration-def.MinDuration+1),
		CreatedAt:          now,
		TimeoutSeconds:     timeoutSeconds,
		Solution:           def.solve(r),
	}
}

// Age returns how long the module has been alive since its last (re)creation.
func (m *Module) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// SecondsLeft returns whole seconds until expiry; negative once past it.
func (m *Module) SecondsLeft(now time.Time) int {
	return m.TimeoutSeconds - int(m.Age(now)/time.Second)
}

// Expired reports whether a pending module has reached its timeout.
func (m *Module) Expired(now time.Time) bool {
	return m.Age(now) >= time.Duration(m.TimeoutSeconds)*time.Second
}

// Overdue reports whether the module's age strictly exceeds its timeout. A
// module on a bench explodes only once overdue.
func (m *Module) Overdue(now time.Time) bool {
	return m.Age(now) > time.Duration(m.TimeoutSeconds)*time.Second
}

// Matches compares an operator instruction against the solution, ignoring
// case and surrounding whitespace.
func (m *Module) Matches(instruction string) bool {
	return strings.EqualFold(strings.TrimSpace(instruction), m.Solution)
}

// Penalize applies the failed-attempt penalty: the timeout shrinks by the
// elapsed work (at least one second) with a floor of one second, the
// creation time restarts at now and the instruction is cleared.
func (m *Module) Penalize(elapsedSeconds int, now time.Time) {
	reduction := elapsedSeconds
	if reduction <= 0 {
		reduction = 1
	}
	m.TimeoutSeconds -= reduction
	if m.TimeoutSeconds < 1 {
		m.TimeoutSeconds = 1
	}
	m.CreatedAt = now
	m.Instruction = ""
}

// Label is the short form used in event log lines, e.g. "M12".
func (m *Module) Label() string {
	return fmt.Sprintf("M%d", m.ID)
}
