package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/MRamiBalles/KeepSolving/internal/domain/fault"
	"github.com/MRamiBalles/KeepSolving/internal/domain/module"
)

// Command is one operator intent queued for the dispatcher.
type Command interface {
	Name() string
}

// AutoAssign sends the oldest pending module to any idle tedax.
type AutoAssign struct{}

// ManualAssign sends a chosen module, with the operator's instruction, to any
// idle tedax.
type ManualAssign struct {
	ModuleID    int
	Instruction string
}

// ManualAssignExact pins a chosen module to a specific tedax and bench.
type ManualAssignExact struct {
	ModuleID    int
	WorkerID    int
	BenchID     int
	Instruction string
}

// KindAssign is the compact "<tedax><kind><bench>" form: the oldest pending
// module of that kind goes to the named tedax and bench.
type KindAssign struct {
	WorkerID int
	Kind     module.Kind
	BenchID  int
}

// Designate hands a module to the first tedax that will take it. The tedax
// then waits for any bench on its own.
type Designate struct {
	ModuleID    int
	Instruction string
}

// SolveNow is the operator defusing a module by hand, without a tedax.
type SolveNow struct {
	ModuleID int
	Answer   string
}

// Shutdown stops the dispatcher and ends the round.
type Shutdown struct{}

func (AutoAssign) Name() string        { return "AUTO" }
func (ManualAssign) Name() string      { return "MANUAL" }
func (ManualAssignExact) Name() string { return "MANUAL_EXACT" }
func (KindAssign) Name() string        { return "KIND" }
func (Designate) Name() string         { return "DESIGNATE" }
func (SolveNow) Name() string          { return "SOLVE" }
func (Shutdown) Name() string          { return "SHUTDOWN" }

var compactForm = regexp.MustCompile(`^(\d+)([A-Za-z])(\d+)$`)

// ParseCommand reads one line of operator input.
//
//	a | auto                          AutoAssign
//	q | quit                          Shutdown
//	m <id> [instruction...]           ManualAssign
//	x <id> <tedax> <bench> [instr...] ManualAssignExact
//	d <id> [instruction...]           Designate
//	s <id> <answer...>                SolveNow
//	<tedax><w|b|p><bench>             KindAssign, e.g. 1w0
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command: %w", fault.ErrInvalidCommand)
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "a", "auto":
		if len(args) != 0 {
			return nil, invalid(line, "auto takes no arguments")
		}
		return AutoAssign{}, nil

	case "q", "quit":
		return Shutdown{}, nil

	case "m", "manual":
		id, err := moduleID(line, args)
		if err != nil {
			return nil, err
		}
		return ManualAssign{ModuleID: id, Instruction: strings.Join(args[1:], " ")}, nil

	case "x", "exact":
		if len(args) < 3 {
			return nil, invalid(line, "want x <id> <tedax> <bench> [instruction]")
		}
		id, err := moduleID(line, args)
		if err != nil {
			return nil, err
		}
		worker, err1 := strconv.Atoi(args[1])
		bench, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil || worker < 0 || bench < 0 {
			return nil, invalid(line, "tedax and bench must be non-negative numbers")
		}
		return ManualAssignExact{
			ModuleID:    id,
			WorkerID:    worker,
			BenchID:     bench,
			Instruction: strings.Join(args[3:], " "),
		}, nil

	case "d", "designate":
		id, err := moduleID(line, args)
		if err != nil {
			return nil, err
		}
		return Designate{ModuleID: id, Instruction: strings.Join(args[1:], " ")}, nil

	case "s", "solve":
		id, err := moduleID(line, args)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, invalid(line, "solve needs an answer")
		}
		return SolveNow{ModuleID: id, Answer: strings.Join(args[1:], " ")}, nil
	}

	if len(fields) == 1 {
		if c := compactForm.FindStringSubmatch(fields[0]); c != nil {
			kind, ok := module.KindFromLetter(c[2][0])
			if !ok {
				return nil, invalid(line, "unknown module letter "+c[2])
			}
			worker, _ := strconv.Atoi(c[1])
			bench, _ := strconv.Atoi(c[3])
			return KindAssign{WorkerID: worker, Kind: kind, BenchID: bench}, nil
		}
	}
	return nil, invalid(line, "unknown command")
}

func moduleID(line string, args []string) (int, error) {
	if len(args) == 0 {
		return 0, invalid(line, "missing module id")
	}
	raw := strings.TrimPrefix(strings.ToUpper(args[0]), "M")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, invalid(line, "bad module id "+args[0])
	}
	return id, nil
}

func invalid(line, reason string) error {
	return fmt.Errorf("%q: %s: %w", line, reason, fault.ErrInvalidCommand)
}
