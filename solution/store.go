package solution

import (
	"fmt"
)

// Store owns the global solution vector of the current pass together with
// the per-function skip and unconstrained flags used by numbering and
// recovery. Before the solve the vector doubles as the right-hand side.
//
// Index ranges come from the equation numbering of the same pass, so an
// out-of-range access is a programming error and panics.
type Store struct {
	vec   []float64
	skip  []bool
	uncon []bool
	eqs   []int
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{}
}

// Allocate resizes the vector to nEq entries, all zero
func (s *Store) Allocate(nEq int) {
	if nEq < 0 {
		panic(fmt.Sprintf("solution: negative equation count %d", nEq))
	}
	if cap(s.vec) >= nEq {
		s.vec = s.vec[:nEq]
		s.Zero()
		return
	}
	s.vec = make([]float64, nEq)
}

// AllocateFlags resizes the function flags. Every function starts
// unconstrained and not skipped.
func (s *Store) AllocateFlags(nFun int) {
	s.skip = make([]bool, nFun)
	s.uncon = make([]bool, nFun)
	s.eqs = make([]int, nFun)
	for i := range s.uncon {
		s.uncon[i] = true
		s.eqs[i] = -1
	}
}

func (s *Store) checkEq(i int) {
	if i < 0 || i >= len(s.vec) {
		panic(fmt.Sprintf("solution: equation %d out of range [0,%d)", i, len(s.vec)))
	}
}

func (s *Store) checkFun(i int) {
	if i < 0 || i >= len(s.skip) {
		panic(fmt.Sprintf("solution: function %d out of range [0,%d)", i, len(s.skip)))
	}
}

// Len returns the number of equations
func (s *Store) Len() int { return len(s.vec) }

// NumFunctions returns the number of functions the flags cover
func (s *Store) NumFunctions() int { return len(s.skip) }

// Get returns entry i
func (s *Store) Get(i int) float64 {
	s.checkEq(i)
	return s.vec[i]
}

// Put sets entry i
func (s *Store) Put(i int, v float64) {
	s.checkEq(i)
	s.vec[i] = v
}

// PlusAssign adds v to entry i
func (s *Store) PlusAssign(i int, v float64) {
	s.checkEq(i)
	s.vec[i] += v
}

// Zero clears the vector
func (s *Store) Zero() {
	for i := range s.vec {
		s.vec[i] = 0
	}
}

// Copy overwrites the vector with v, which must have the same length
func (s *Store) Copy(v []float64) {
	if len(v) != len(s.vec) {
		panic(fmt.Sprintf("solution: copy length %d != %d", len(v), len(s.vec)))
	}
	copy(s.vec, v)
}

// Vector exposes the backing slice to solvers that work in place
func (s *Store) Vector() []float64 { return s.vec }

// Skip reports whether function fn is excluded from the current equation set
func (s *Store) Skip(fn int) bool {
	s.checkFun(fn)
	return s.skip[fn]
}

// SetSkip sets the skip flag of function fn
func (s *Store) SetSkip(fn int, v bool) {
	s.checkFun(fn)
	s.skip[fn] = v
}

// Unconstrained reports whether function fn is free
func (s *Store) Unconstrained(fn int) bool {
	s.checkFun(fn)
	return s.uncon[fn]
}

// SetUnconstrained sets the unconstrained flag of function fn
func (s *Store) SetUnconstrained(fn int, v bool) {
	s.checkFun(fn)
	s.uncon[fn] = v
}

// IsSkipped and IsUnconstrained let the store drive equation numbering
func (s *Store) IsSkipped(fn int) bool       { return s.Skip(fn) }
func (s *Store) IsUnconstrained(fn int) bool { return s.Unconstrained(fn) }

// SetEquation records the equation assigned to function fn
func (s *Store) SetEquation(fn, eq int) {
	s.checkFun(fn)
	s.eqs[fn] = eq
}

// Equation returns the equation of function fn, or -1
func (s *Store) Equation(fn int) int {
	s.checkFun(fn)
	return s.eqs[fn]
}
