package errest

import (
	"math"

	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errors"
)

// StressChecker measures how far the discrete stress field is from being
// continuous. The smoothing error of an element is the largest distance
// between its vertex stresses and the nodal averages over all elements
// sharing each node; the jump error is the largest stress difference
// across its interior faces, sampled at the face centroids. Both are
// divided by the peak von Mises stress of the model.
type StressChecker struct{}

type nodalSum struct {
	s [6]float64
	n int
}

// tensorNorm is the Frobenius norm of a symmetric tensor in vector form
func tensorNorm(s [6]float64) float64 {
	return math.Sqrt(s[0]*s[0] + s[1]*s[1] + s[2]*s[2] + 2*(s[3]*s[3]+s[4]*s[4]+s[5]*s[5]))
}

func diff(a, b [6]float64) (d [6]float64) {
	for i := range d {
		d[i] = a[i] - b[i]
	}
	return
}

func (StressChecker) Check(in Input) ([]ElementError, error) {
	elems := in.Model.Elements()
	caps := make([]element.Capability, len(elems))
	coeffs := make([][]float64, len(elems))
	vertexStress := make([][][6]float64, len(elems))
	nodal := make(map[int]*nodalSum)
	var ref, refAll float64

	for _, el := range elems {
		if el.Inactive {
			continue
		}
		c, err := in.Evaluator.Capability(el.Shape)
		if err != nil {
			return nil, &errors.ElementError{ElementID: el.ID, Err: err}
		}
		caps[el.ID] = c
		coeffs[el.ID] = in.Solution.ElementCoeffs(el)
		vertexStress[el.ID] = make([][6]float64, c.NumVertices())
		for _, at := range c.SamplePoints(el) {
			s, _, err := c.Stress(el, coeffs[el.ID], at)
			if err != nil {
				return nil, &errors.ElementError{ElementID: el.ID, Err: err}
			}
			vm := element.VonMises(s)
			refAll = math.Max(refAll, vm)
			if !el.Sacrificial {
				ref = math.Max(ref, vm)
			}
			if at.Vertex < 0 {
				continue
			}
			vertexStress[el.ID][at.Vertex] = s
			ns := nodal[el.Nodes[at.Vertex]]
			if ns == nil {
				ns = &nodalSum{}
				nodal[el.Nodes[at.Vertex]] = ns
			}
			for i := range s {
				ns.s[i] += s[i]
			}
			ns.n++
		}
	}

	// singular stresses in sacrificial elements do not set the scale
	if ref == 0 {
		ref = refAll
	}
	var out []ElementError
	for _, el := range elems {
		if el.Inactive {
			continue
		}
		ee := ElementError{ElementID: el.ID}
		if ref == 0 {
			out = append(out, ee)
			continue
		}
		for v, s := range vertexStress[el.ID] {
			ns := nodal[el.Nodes[v]]
			var avg [6]float64
			for i := range avg {
				avg[i] = ns.s[i] / float64(ns.n)
			}
			ee.SmoothRaw = math.Max(ee.SmoothRaw, tensorNorm(diff(s, avg))/ref)
		}

		c := caps[el.ID]
		for f := 0; f < c.NumFaces(); f++ {
			nb, nbf, ok := in.Model.FaceNeighbor(el.ID, f)
			if !ok || elems[nb].Inactive {
				continue
			}
			other := elems[nb]
			sa, _, err := c.Stress(el, coeffs[el.ID], c.FaceCentroid(el, f))
			if err != nil {
				return nil, &errors.ElementError{ElementID: el.ID, Err: err}
			}
			oc := caps[nb]
			sb, _, err := oc.Stress(other, coeffs[nb], oc.FaceCentroid(other, nbf))
			if err != nil {
				return nil, &errors.ElementError{ElementID: nb, Err: err}
			}
			ee.FaceJump = math.Max(ee.FaceJump, tensorNorm(diff(sa, sb))/ref)
		}
		out = append(out, ee)
	}
	return out, nil
}
