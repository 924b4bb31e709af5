package errest

import (
	"math"

	"github.com/notargets/StressRefine/element"
)

type RefinerOptions struct {
	Tolerance float64
	MaxP      int
	MaxPJump  int // largest order increase in one pass

	// Elements whose peak stress is below LowStressFraction of the model
	// maximum stop at LowStressMaxP. Zero disables the rule.
	LowStressMaxP     int
	LowStressFraction float64

	Uniform bool // raise every element below its cap by one

	// FinalMaxP replaces MaxP for the raise into the last pass; 0 keeps MaxP
	FinalMaxP int
}

const (
	DefaultTolerance = 0.05
	DefaultMaxP      = 8
	DefaultMaxPJump  = 2
)

// Refiner decides the new polynomial orders after an estimate
type Refiner struct {
	opts  RefinerOptions
	final bool
}

func NewRefiner(opts RefinerOptions) *Refiner {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.MaxP < 1 {
		opts.MaxP = DefaultMaxP
	}
	if opts.MaxPJump < 1 {
		opts.MaxPJump = DefaultMaxPJump
	}
	return &Refiner{opts: opts}
}

func (r *Refiner) Tolerance() float64 { return r.opts.Tolerance }

// SetFinal tells the refiner whether the next pass is the last one
func (r *Refiner) SetFinal(final bool) { r.final = final }

func (r *Refiner) maxP() int {
	if r.final && r.opts.FinalMaxP > 0 {
		return r.opts.FinalMaxP
	}
	return r.opts.MaxP
}

// Converged reports whether the global error is within tolerance
func (r *Refiner) Converged(est *Estimate) bool { return est.Global <= r.opts.Tolerance }

// Cap returns the highest order element k may reach
func (r *Refiner) Cap(est *Estimate, k int) int {
	o := r.opts
	if o.LowStressMaxP > 0 && o.LowStressFraction > 0 && k < len(est.PeakStress) &&
		est.PeakStress[k] < o.LowStressFraction*est.StressMax.VonMises {
		return min(o.LowStressMaxP, r.maxP())
	}
	return r.maxP()
}

// ShouldRaise reports whether el gets a higher order
func (r *Refiner) ShouldRaise(est *Estimate, el *element.Element) bool {
	if el.Inactive || el.Sacrificial || el.P >= r.Cap(est, el.ID) {
		return false
	}
	return r.opts.Uniform || est.LocalError(el.ID) > r.opts.Tolerance
}

// NewOrder returns the order el gets after est; elements that are not
// raised keep theirs
func (r *Refiner) NewOrder(est *Estimate, el *element.Element) int {
	if !r.ShouldRaise(est, el) {
		return el.P
	}
	inc := 1
	if !r.opts.Uniform {
		ratio := est.LocalError(el.ID) / r.opts.Tolerance
		inc = min(1+int(math.Floor(math.Log2(ratio))), r.opts.MaxPJump)
	}
	return min(el.P+inc, r.Cap(est, el.ID))
}

// Apply raises the orders of elems in place and returns the ids of the
// raised elements
func (r *Refiner) Apply(est *Estimate, elems []*element.Element) (raised []int) {
	next := make([]int, len(elems))
	for i, el := range elems {
		next[i] = r.NewOrder(est, el)
	}
	for i, el := range elems {
		if next[i] != el.P {
			el.P = next[i]
			raised = append(raised, el.ID)
		}
	}
	return
}
