package constraint

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"

	"github.com/notargets/StressRefine/errors"
	"gonum.org/v1/gonum/mat"
)

// Kind is the constraint type, in priority order
type Kind uint8

const (
	Fixed    Kind = iota // zero displacement, eliminated
	Enforced             // prescribed displacement, eliminated
	Penalty              // prescribed displacement, stiff spring on the diagonal
)

func (k Kind) String() string {
	switch k {
	case Fixed:
		return "fixed"
	case Enforced:
		return "enforced"
	case Penalty:
		return "penalty"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Constraint prescribes displacement components on a set of mesh nodes.
// Dofs and Values are in global axes, or in the local axes of LCS when it
// is set (rows of LCS are the local axes in global coordinates).
type Constraint struct {
	Kind   Kind
	Nodes  []int
	Dofs   [3]bool
	Values [3]float64
	LCS    *mat.Dense
}

func (c Constraint) allDofs() bool { return c.Dofs[0] && c.Dofs[1] && c.Dofs[2] }

// PointNodes returns the nodes of the constraints that act on fewer than
// three nodes. Stress next to a point support is singular.
func PointNodes(cons []Constraint) []int {
	var nodes []int
	for _, c := range cons {
		if len(c.Nodes) < 3 {
			nodes = append(nodes, c.Nodes...)
		}
	}
	return nodes
}

// Mode selects how the right-hand side is prepared for a pass
type Mode uint8

const (
	FromZero  Mode = iota // fold every element into a zero right-hand side
	Superpose             // reuse the folded part of the last pass when it is still valid
)

// Options controls how constraints are applied
type Options struct {
	PenaltyScale float64 // spring stiffness relative to the largest diagonal
	AllAsPenalty bool    // apply every constraint as a penalty spring
}

// Locator resolves mesh nodes to shape modes
type Locator interface {
	// VertexMode returns the vertex mode of a mesh node
	VertexMode(node int) (mode int, ok bool)
	// EntityModes returns the higher-order modes of every edge and face
	// whose vertices all belong to nodes
	EntityModes(nodes []int) []int
}

// FlagSetter is write access to the unconstrained flags of the function set
type FlagSetter interface {
	NumFunctions() int
	Skip(fn int) bool
	SetUnconstrained(fn int, v bool)
}

// Equations maps a function to its equation, -1 when it has none
type Equations interface {
	Equation(fn int) int
}

// Target receives the penalty springs
type Target interface {
	MaxDiagonal() float64
	Add(i, j int, v float64)
	AddRHS(i int, v float64)
}

type spring struct {
	fns [3]int     // the three component functions of a vertex mode
	n   [3]float64 // unit direction in global axes
	u   float64    // prescribed displacement along n
}

// Partial is the prescribed-displacement part of a right-hand side,
// kept across passes. It is valid for the equation map and prescribed
// values it was folded under; element stiffnesses are taken to be fixed
// while the equation map is.
type Partial struct {
	eqs    []int
	values map[int]float64
	vec    []float64
}

func NewPartial() *Partial { return &Partial{} }

func (pt *Partial) valid(n int, eqs []int, values map[int]float64) bool {
	return pt.vec != nil && len(pt.vec) == n &&
		slices.Equal(pt.eqs, eqs) && maps.Equal(pt.values, values)
}

func (pt *Partial) reset(n int, eqs []int, values map[int]float64) {
	if cap(pt.vec) >= n {
		pt.vec = pt.vec[:n]
		clear(pt.vec)
	} else {
		pt.vec = make([]float64, n)
	}
	pt.eqs = slices.Clone(eqs)
	pt.values = maps.Clone(values)
}

// Processor applies a constraint set to one pass
type Processor struct {
	cons    []Constraint
	opts    Options
	values  map[int]float64 // eliminated function -> prescribed value
	springs []spring
	partial *Partial
	reused  bool
}

func NewProcessor(cons []Constraint, opts Options) *Processor {
	sorted := make([]Constraint, len(cons))
	copy(sorted, cons)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Kind < sorted[j].Kind })
	if opts.PenaltyScale <= 0 {
		opts.PenaltyScale = 1.e6
	}
	return &Processor{cons: sorted, opts: opts, values: make(map[int]float64)}
}

// Mark resolves every constraint to functions and clears the
// unconstrained flag of the eliminated ones. A function claimed by a
// higher-priority constraint is left as it is.
func (p *Processor) Mark(loc Locator, flags FlagSetter) error {
	p.values = make(map[int]float64)
	p.springs = p.springs[:0]
	for ci, c := range p.cons {
		if err := p.mark(ci, c, loc, flags); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) mark(ci int, c Constraint, loc Locator, flags FlagSetter) error {
	var R [3][3]float64
	if c.LCS != nil {
		if r, cc := c.LCS.Dims(); r != 3 || cc != 3 {
			return errors.WrapConfiguration(errors.ErrInvalidConfig, "constraint", "Mark",
				fmt.Sprintf("constraint %d: local system is %dx%d", ci, r, cc))
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				R[i][j] = c.LCS.At(i, j)
			}
		}
	} else {
		R = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}

	values := c.Values
	if c.Kind == Fixed {
		values = [3]float64{}
	}
	asPenalty := c.Kind == Penalty || p.opts.AllAsPenalty || (c.LCS != nil && !c.allDofs())

	for _, node := range c.Nodes {
		mode, ok := loc.VertexMode(node)
		if !ok {
			return errors.WrapConfiguration(errors.ErrMissingNode, "constraint", "Mark",
				fmt.Sprintf("constraint %d (%s): node %d", ci, c.Kind, node))
		}
		fns := [3]int{3 * mode, 3*mode + 1, 3*mode + 2}
		for _, fn := range fns {
			if err := checkFunction(fn, flags); err != nil {
				return err
			}
		}

		if asPenalty {
			p.addSprings(fns, R, c.Dofs, values)
			continue
		}

		if c.LCS != nil {
			// full local specification: u_g = Rᵀ u_l
			for g := 0; g < 3; g++ {
				var ug float64
				for l := 0; l < 3; l++ {
					ug += R[l][g] * values[l]
				}
				p.eliminate(fns[g], ug, flags)
			}
			continue
		}
		for i := 0; i < 3; i++ {
			if c.Dofs[i] {
				p.eliminate(fns[i], values[i], flags)
			}
		}
	}

	if asPenalty {
		// edge and face modes are held at zero along the vertex spring directions
		for _, mode := range loc.EntityModes(c.Nodes) {
			fns := [3]int{3 * mode, 3*mode + 1, 3*mode + 2}
			for _, fn := range fns {
				if err := checkFunction(fn, flags); err != nil {
					return err
				}
			}
			p.addSprings(fns, R, c.Dofs, [3]float64{})
		}
		return nil
	}
	dofs := c.Dofs
	if c.LCS != nil {
		dofs = [3]bool{true, true, true}
	}
	for _, mode := range loc.EntityModes(c.Nodes) {
		for i := 0; i < 3; i++ {
			if !dofs[i] {
				continue
			}
			fn := 3*mode + i
			if err := checkFunction(fn, flags); err != nil {
				return err
			}
			p.eliminate(fn, 0, flags)
		}
	}
	return nil
}

func (p *Processor) addSprings(fns [3]int, R [3][3]float64, dofs [3]bool, values [3]float64) {
	for i := 0; i < 3; i++ {
		if dofs[i] {
			p.springs = append(p.springs, spring{fns: fns, n: R[i], u: values[i]})
		}
	}
}

func checkFunction(fn int, flags FlagSetter) error {
	if fn < 0 || fn >= flags.NumFunctions() || flags.Skip(fn) {
		return errors.WrapConfiguration(errors.ErrMissingFunction, "constraint", "Mark",
			fmt.Sprintf("function %d", fn))
	}
	return nil
}

func (p *Processor) eliminate(fn int, v float64, flags FlagSetter) {
	if _, done := p.values[fn]; done {
		return
	}
	p.values[fn] = v
	flags.SetUnconstrained(fn, false)
}

// UsePartial keeps the folded part of the right-hand side in pt, which
// outlives the Processor
func (p *Processor) UsePartial(pt *Partial) { p.partial = pt }

// Begin zeroes rhs for a pass numbered by eqs (function -> equation).
// In Superpose mode a Partial folded under the same equations and
// prescribed values is copied onto rhs and FoldElement becomes a no-op;
// otherwise the Partial is reset and collects the folds of this pass.
func (p *Processor) Begin(rhs []float64, mode Mode, eqs []int) {
	clear(rhs)
	p.reused = false
	pt := p.partial
	if pt == nil {
		return
	}
	if mode == Superpose && pt.valid(len(rhs), eqs, p.values) {
		copy(rhs, pt.vec)
		p.reused = true
		return
	}
	pt.reset(len(rhs), eqs, p.values)
}

// Superposed reports whether the last Begin reused the folded part
func (p *Processor) Superposed() bool { return p.reused }

// FoldElement moves the coupling of free functions to prescribed values
// onto the right-hand side: rhs[eq(a)] -= K[a][b] u_b
func (p *Processor) FoldElement(funcs []int, ke mat.Symmetric, eqs Equations, rhs []float64) {
	if p.reused {
		return
	}
	var acc []float64
	if p.partial != nil && len(p.partial.vec) == len(rhs) {
		acc = p.partial.vec
	}
	for b, fb := range funcs {
		ub, ok := p.values[fb]
		if !ok || ub == 0 {
			continue
		}
		for a, fa := range funcs {
			if ea := eqs.Equation(fa); ea >= 0 {
				v := ke.At(a, b) * ub
				rhs[ea] -= v
				if acc != nil {
					acc[ea] -= v
				}
			}
		}
	}
}

// ApplyPenalties adds k n nᵀ to the vertex block and k n u to the
// right-hand side of every penalty spring, k = PenaltyScale × max|diag|
func (p *Processor) ApplyPenalties(sys Target, eqs Equations) {
	if len(p.springs) == 0 {
		return
	}
	k := p.opts.PenaltyScale
	if d := sys.MaxDiagonal(); d > 0 {
		k *= d
	}
	for _, s := range p.springs {
		var e [3]int
		for i, fn := range s.fns {
			e[i] = eqs.Equation(fn)
		}
		for i := 0; i < 3; i++ {
			if e[i] < 0 || s.n[i] == 0 {
				continue
			}
			for j := 0; j < 3; j++ {
				if e[j] < 0 || s.n[j] == 0 {
					continue
				}
				sys.Add(e[i], e[j], k*s.n[i]*s.n[j])
			}
			sys.AddRHS(e[i], k*s.n[i]*s.u)
		}
	}
}

// Value returns the prescribed value of an eliminated function
func (p *Processor) Value(fn int) (float64, bool) {
	v, ok := p.values[fn]
	return v, ok
}

func (p *Processor) NumEliminated() int { return len(p.values) }
func (p *Processor) NumSprings() int    { return len(p.springs) }

// MaxPrescribed returns the largest absolute prescribed displacement
func (p *Processor) MaxPrescribed() (m float64) {
	for _, v := range p.values {
		m = math.Max(m, math.Abs(v))
	}
	for _, s := range p.springs {
		m = math.Max(m, math.Abs(s.u))
	}
	return
}
