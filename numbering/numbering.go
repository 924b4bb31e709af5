package numbering

import (
	"fmt"

	"github.com/notargets/StressRefine/errors"
)

// NumComponents is the number of displacement components per shape mode
const NumComponents = 3

// FunctionID returns the global function id of component comp of mode
func FunctionID(mode, comp int) int { return NumComponents*mode + comp }

// ModeOf returns the shape mode a function belongs to
func ModeOf(fn int) int { return fn / NumComponents }

// ComponentOf returns the displacement component of a function
func ComponentOf(fn int) int { return fn % NumComponents }

// Builder is the narrow view the numberer needs of the function set:
// read access to the flags and write access to the equation slot.
type Builder interface {
	NumFunctions() int
	IsSkipped(fn int) bool
	IsUnconstrained(fn int) bool
	SetEquation(fn, eq int)
}

// Result holds the numbering of one adaptive pass
type Result struct {
	Equations          []int // [NumFunctions] equation of each function, -1 if none
	NumEquations       int
	SmoothEquations    []int // [NumModes] stress-smoothing equation of each mode, -1 if none
	NumSmoothEquations int
}

// Equation returns the equation of fn, or -1
func (r Result) Equation(fn int) int {
	if fn < 0 || fn >= len(r.Equations) {
		return -1
	}
	return r.Equations[fn]
}

// EquationsOf maps a list of functions to their equations
func (r Result) EquationsOf(fns []int) []int {
	eqs := make([]int, len(fns))
	for i, fn := range fns {
		eqs[i] = r.Equation(fn)
	}
	return eqs
}

// Numberer assigns dense equation indices
type Numberer struct{}

// Number walks the functions in id order. Every unconstrained, non-skipped
// function receives the next equation; all others receive -1. The smoothing
// space gets one equation per mode with at least one non-skipped component.
func (Numberer) Number(b Builder) (Result, error) {
	nfun := b.NumFunctions()
	if nfun%NumComponents != 0 {
		return Result{}, errors.WrapConfiguration(
			fmt.Errorf("%d functions is not a multiple of %d components", nfun, NumComponents),
			"numbering", "Number", "")
	}
	nmode := nfun / NumComponents
	res := Result{
		Equations:       make([]int, nfun),
		SmoothEquations: make([]int, nmode),
	}
	var eq, seq int
	for mode := 0; mode < nmode; mode++ {
		active := false
		for comp := 0; comp < NumComponents; comp++ {
			fn := FunctionID(mode, comp)
			res.Equations[fn] = -1
			if b.IsSkipped(fn) {
				b.SetEquation(fn, -1)
				continue
			}
			active = true
			if !b.IsUnconstrained(fn) {
				b.SetEquation(fn, -1)
				continue
			}
			res.Equations[fn] = eq
			b.SetEquation(fn, eq)
			eq++
		}
		res.SmoothEquations[mode] = -1
		if active {
			res.SmoothEquations[mode] = seq
			seq++
		}
	}
	res.NumEquations = eq
	res.NumSmoothEquations = seq
	if eq == 0 {
		return res, errors.WrapConfiguration(errors.ErrNoEquations, "numbering", "Number",
			fmt.Sprintf("%d functions, all constrained or skipped", nfun))
	}
	return res, nil
}
