// Package condition compiles and evaluates CONDITION_SET expressions.
// original_source forwards a condition as a literal "cond N if ( <expr> )"
// line to the textual monitor's own expression parser (a collaborator
// this spec explicitly puts out of scope, see spec.md §6.4's
// parse_and_execute). This implementation instead compiles the bare
// <expr> with a real JavaScript engine, exposing the machine's registers
// and memory as globals/functions the expression can reference — the
// same shape the teacher repo used to expose Go-side state into
// emulated call sites.
package condition

import (
	"fmt"

	"github.com/dop251/goja"
)

// MachineView is the minimal read surface a condition needs. Satisfied
// structurally by *emulator.Machine — no import of internal/emulator is
// required here, keeping this package a leaf.
type MachineView interface {
	ReadRegister(memspace int, id uint8) (uint64, error)
	ReadMemory(memspace int, bank uint16, addr, size uint64) ([]byte, error)
}

// Register id aliases matching internal/emulator's computer register
// ids, duplicated here (not imported) to keep this package dependency-free
// of the emulator; the handler layer is responsible for keeping these
// aligned with emulator.RegIDX0 etc.
const (
	regX0 uint8 = iota
	regX1
	regX2
	regX3
	regX4
	regX5
	regX6
	regX7
	regX8
	regPC
	regSP
	regLR
)

// Evaluator is a compiled condition bound to a particular checkpoint.
type Evaluator struct {
	source  string
	program *goja.Program
	machine MachineView
	bank    uint16
}

// Compile parses a condition expression (the bare boolean expression,
// without the "cond N if ( ... )" wrapper original_source would build)
// into an Evaluator.
func Compile(expr string, machine MachineView, bank uint16) (*Evaluator, error) {
	program, err := goja.Compile("condition", expr, false)
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expr, err)
	}
	return &Evaluator{source: expr, program: program, machine: machine, bank: bank}, nil
}

// Source returns the original expression text.
func (e *Evaluator) Source() string {
	return e.source
}

// Eval runs the condition against the given memspace's current register
// and memory state, returning its truthiness. Implements
// emulator.ConditionEvaluator.
func (e *Evaluator) Eval(memspace int) (bool, error) {
	vm := goja.New()

	regNames := map[string]uint8{
		"x0": regX0, "x1": regX1, "x2": regX2, "x3": regX3, "x4": regX4,
		"x5": regX5, "x6": regX6, "x7": regX7, "x8": regX8,
		"pc": regPC, "sp": regSP, "lr": regLR,
	}
	for name, id := range regNames {
		val, err := e.machine.ReadRegister(memspace, id)
		if err != nil {
			continue // register not valid for this memspace (e.g. drive memspaces)
		}
		if err := vm.Set(name, val); err != nil {
			return false, fmt.Errorf("set %s: %w", name, err)
		}
	}

	if err := vm.Set("mem", func(addr uint64) uint64 {
		data, err := e.machine.ReadMemory(memspace, e.bank, addr, 1)
		if err != nil || len(data) == 0 {
			return 0
		}
		return uint64(data[0])
	}); err != nil {
		return false, fmt.Errorf("set mem func: %w", err)
	}

	result, err := vm.RunProgram(e.program)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", e.source, err)
	}

	return result.ToBoolean(), nil
}
