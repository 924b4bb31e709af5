package errest

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errors"
)

// ElementError is the estimated error of one element, relative to the
// peak von Mises stress of the model
type ElementError struct {
	ElementID int
	SmoothRaw float64 // smoothed-stress error
	FaceJump  float64 // stress jump across faces
	Value     float64 // combined local error
}

// Combine is the local error of an element
func Combine(smooth, jump float64) float64 { return math.Hypot(smooth, jump) }

// Model is the mesh as seen by the estimator. Elements()[k].ID must be k.
type Model interface {
	Elements() []*element.Element
	FaceNeighbor(k, f int) (nb, nbFace int, ok bool)
}

// Solution gives the local coefficient vector of an element
type Solution interface {
	ElementCoeffs(el *element.Element) []float64
}

type Input struct {
	Model     Model
	Evaluator element.Evaluator
	Solution  Solution
}

// Checker computes the raw error components of every active element
type Checker interface {
	Check(in Input) ([]ElementError, error)
}

// Estimate is the outcome of one error estimation
type Estimate struct {
	Elements   []ElementError // by checker, Value filled in
	Local      []float64      // local error by element id, 0 for inactive elements
	Global     float64        // max over elements
	MaxElement int            // element at the global error, -1 if none
	MaxSmooth  float64        // raw components at MaxElement
	MaxJump    float64
	PeakStress []float64 // max sampled von Mises by element id
	StressMax  StressMax // over active elements that are not sacrificial
	// Sacrificial lists every element marked so far in the run
	Sacrificial []int
}

// LocalError returns the error of element k
func (e *Estimate) LocalError(k int) float64 {
	if k < 0 || k >= len(e.Local) {
		return 0
	}
	return e.Local[k]
}

type Estimator struct {
	checker  Checker
	detector *Detector
	logger   *slog.Logger
}

func NewEstimator(c Checker, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{checker: c, logger: logger.With("component", "errest")}
}

// UseDetector marks sacrificial elements after sampling each pass; nil
// turns detection off
func (e *Estimator) UseDetector(d *Detector) { e.detector = d }

// Estimate runs the checker, combines its components into local and
// global errors and searches the sample points of every active element
// for the stress and strain maxima. Elements must satisfy ID == index.
func (e *Estimator) Estimate(in Input) (*Estimate, error) {
	elems := in.Model.Elements()
	if err := element.CheckIDs(elems); err != nil {
		return nil, errors.WrapConfiguration(err, "errest", "Estimate", "")
	}
	est := &Estimate{
		Local:      make([]float64, len(elems)),
		PeakStress: make([]float64, len(elems)),
		MaxElement: -1,
	}
	est.StressMax.Reset()
	elemMax := make([]StressMax, len(elems))

	for _, el := range elems {
		sm := &elemMax[el.ID]
		sm.Reset()
		if el.Inactive {
			continue
		}
		c, err := in.Evaluator.Capability(el.Shape)
		if err != nil {
			return nil, &errors.ElementError{ElementID: el.ID, Err: err}
		}
		u := in.Solution.ElementCoeffs(el)
		for _, at := range c.SamplePoints(el) {
			stress, strain, err := c.Stress(el, u, at)
			if err != nil {
				return nil, &errors.ElementError{ElementID: el.ID, Err: err}
			}
			vm := element.VonMises(stress)
			est.PeakStress[el.ID] = math.Max(est.PeakStress[el.ID], vm)
			node := -1
			if at.Vertex >= 0 {
				node = el.Nodes[at.Vertex]
			}
			sm.Consider(Sample{
				ElementID: el.ID,
				Node:      node,
				Position:  c.Position(el, at),
				Stress:    stress,
				Strain:    strain,
			})
		}
	}

	if e.detector != nil {
		if marked := e.detector.Detect(elems, est.PeakStress); len(marked) > 0 {
			e.logger.Info("sacrificial elements", "marked", marked)
		}
	}
	for _, el := range elems {
		if el.Sacrificial {
			est.Sacrificial = append(est.Sacrificial, el.ID)
			continue
		}
		est.StressMax.Merge(elemMax[el.ID])
	}

	errs, err := e.checker.Check(in)
	if err != nil {
		return nil, err
	}
	for i := range errs {
		ee := &errs[i]
		if ee.ElementID < 0 || ee.ElementID >= len(elems) {
			return nil, errors.WrapConfiguration(errors.ErrInvalidConfig, "errest", "Estimate",
				fmt.Sprintf("checker reported unknown element %d", ee.ElementID))
		}
		ee.Value = Combine(ee.SmoothRaw, ee.FaceJump)
		est.Local[ee.ElementID] = ee.Value
		if elems[ee.ElementID].Sacrificial {
			continue
		}
		if est.MaxElement < 0 || ee.Value > est.Global ||
			(ee.Value == est.Global && ee.ElementID < est.MaxElement) {
			est.Global = ee.Value
			est.MaxElement = ee.ElementID
			est.MaxSmooth = ee.SmoothRaw
			est.MaxJump = ee.FaceJump
		}
	}
	est.Elements = errs

	e.logger.Debug("estimated",
		"global", est.Global,
		"element", est.MaxElement,
		"smooth", est.MaxSmooth,
		"jump", est.MaxJump,
		"max_von_mises", est.StressMax.VonMises)
	return est, nil
}
