package errest

import (
	"math"
	"slices"

	"github.com/notargets/StressRefine/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// SacrificialOptions control the search for elements whose stress is
// singular: elements touching a point constraint, flattened elements at
// high stress and hot spots whose peak keeps growing with the order
type SacrificialOptions struct {
	Enabled bool
	// GrowthRatio is the pass-to-pass peak growth that marks a hot spot
	GrowthRatio float64
	// HighStressFraction of the model maximum qualifies an element as a
	// flattened element at high stress or as a hot spot
	HighStressFraction float64
	// FlattenedQuality is the shape quality below which a tet is flattened
	FlattenedQuality float64
}

const (
	DefaultGrowthRatio        = 1.5
	DefaultHighStressFraction = 0.5
	DefaultFlattenedQuality   = 0.05
)

// Detector marks sacrificial elements over the passes of one run. A
// marked element stays marked.
type Detector struct {
	opts     SacrificialOptions
	points   map[int]bool
	prevPeak []float64
}

// NewDetector returns a detector for a mesh whose point constraints act
// on pointNodes. It returns nil when detection is disabled.
func NewDetector(opts SacrificialOptions, pointNodes []int) *Detector {
	if !opts.Enabled {
		return nil
	}
	if opts.GrowthRatio <= 1 {
		opts.GrowthRatio = DefaultGrowthRatio
	}
	if opts.HighStressFraction <= 0 {
		opts.HighStressFraction = DefaultHighStressFraction
	}
	if opts.FlattenedQuality <= 0 {
		opts.FlattenedQuality = DefaultFlattenedQuality
	}
	d := &Detector{opts: opts, points: make(map[int]bool)}
	for _, n := range pointNodes {
		d.points[n] = true
	}
	return d
}

// ClearSacrificial removes the marks of an earlier run
func ClearSacrificial(elems []*element.Element) {
	for _, el := range elems {
		el.Sacrificial = false
	}
}

// Detect marks the sacrificial elements of this pass from the peak von
// Mises stress of every element (by id) and returns the newly marked ids
func (d *Detector) Detect(elems []*element.Element, peak []float64) (marked []int) {
	mark := func(el *element.Element) {
		if !el.Sacrificial {
			el.Sacrificial = true
			marked = append(marked, el.ID)
		}
	}

	for _, el := range elems {
		if el.Inactive || el.Sacrificial {
			continue
		}
		if slices.ContainsFunc(el.Nodes, func(n int) bool { return d.points[n] }) {
			mark(el)
		}
	}

	var top float64
	for _, el := range elems {
		if !el.Inactive && !el.Sacrificial {
			top = math.Max(top, peak[el.ID])
		}
	}
	high := d.opts.HighStressFraction * top
	if top > 0 {
		for _, el := range elems {
			if el.Inactive || el.Sacrificial || peak[el.ID] < high {
				continue
			}
			if q, ok := TetQuality(el); ok && q < d.opts.FlattenedQuality {
				mark(el)
				continue
			}
			if k := el.ID; k < len(d.prevPeak) && d.prevPeak[k] > 0 && peak[k] > d.opts.GrowthRatio*d.prevPeak[k] {
				mark(el)
			}
		}
	}
	d.prevPeak = slices.Clone(peak)
	return
}

// TetQuality returns 6√2 V / l³ for a straight-sided tet, l the rms edge
// length: 1 for a regular tet, 0 for a flat one
func TetQuality(el *element.Element) (float64, bool) {
	if el.Shape != element.Tet || len(el.Coords) != 4 {
		return 0, false
	}
	var x [4]r3.Vec
	for i, c := range el.Coords {
		x[i] = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
	}
	a, b, c := r3.Sub(x[1], x[0]), r3.Sub(x[2], x[0]), r3.Sub(x[3], x[0])
	vol := math.Abs(r3.Dot(a, r3.Cross(b, c))) / 6

	var sum float64
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			e := r3.Sub(x[j], x[i])
			sum += r3.Dot(e, e)
		}
	}
	if sum == 0 {
		return 0, true
	}
	l := math.Sqrt(sum / 6)
	return 6 * math.Sqrt2 * vol / (l * l * l), true
}
