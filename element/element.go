package element

import (
	"fmt"

	"github.com/notargets/StressRefine/errors"
	"gonum.org/v1/gonum/mat"
)

// Shape identifies the geometry of an element
type Shape uint8

const (
	Tet   Shape = iota // Tetrahedron
	Brick              // Hexahedron
	Wedge              // Triangular prism
	Pyramid
)

func (s Shape) String() string {
	switch s {
	case Tet:
		return "tet"
	case Brick:
		return "brick"
	case Wedge:
		return "wedge"
	case Pyramid:
		return "pyramid"
	default:
		return fmt.Sprintf("shape(%d)", uint8(s))
	}
}

// Element is one mesh element as seen by the analysis core. Mesh and
// material data are owned by the model; the core only reads them and
// updates the polynomial orders between passes.
type Element struct {
	ID       int
	Shape    Shape
	Nodes    []int        // global node id of each local vertex
	Coords   [][3]float64 // vertex coordinates, same order as Nodes
	P        int          // polynomial order of the element interior
	EdgeP    []int        // order of each local edge (max over adjacent elements)
	FaceP    []int        // order of each local face (max over adjacent elements)
	Material Material
	Inactive bool
	// Sacrificial elements carry a stress that does not converge under
	// p refinement. They stay in the stiffness but are left out of the
	// stress maximum and are not raised.
	Sacrificial bool

	// Functions maps local dof 3*mode+comp to the global function id.
	// Set by the model every time the orders change.
	Functions []int
}

// CheckIDs verifies that every element id equals its index in elems.
// Per-element data throughout the analysis is indexed by id.
func CheckIDs(elems []*Element) error {
	for k, el := range elems {
		if el.ID != k {
			return &errors.ElementError{ElementID: el.ID, Err: fmt.Errorf("%w: found at index %d", errors.ErrElementID, k)}
		}
	}
	return nil
}

// MaxOrder returns the highest order on any entity of the element
func (el *Element) MaxOrder() int {
	p := el.P
	for _, q := range el.EdgeP {
		if q > p {
			p = q
		}
	}
	for _, q := range el.FaceP {
		if q > p {
			p = q
		}
	}
	return p
}

// Point is a location inside an element in natural coordinates
// (barycentric for simplices). Vertex is the local vertex index when the
// point sits on a vertex, -1 otherwise.
type Point struct {
	Coords []float64
	Vertex int
}

// Capability is what the analysis core needs from an element shape
type Capability interface {
	NumVertices() int
	NumFaces() int
	// FaceVertices returns the local vertices of a face
	FaceVertices(face int) []int
	// NumModes returns the number of scalar shape modes for the current orders
	NumModes(el *Element) int
	Stiffness(el *Element) (*mat.SymDense, error)
	VolumeForce(el *Element, b [3]float64) ([]float64, error)
	// Stress evaluates stress and engineering strain (xx,yy,zz,xy,yz,xz)
	// for the local coefficient vector u
	Stress(el *Element, u []float64, at Point) (stress, strain [6]float64, err error)
	SamplePoints(el *Element) []Point
	FaceCentroid(el *Element, face int) Point
	Position(el *Element, at Point) [3]float64
	Volume(el *Element) (float64, error)
}

// Evaluator resolves the capability of a shape
type Evaluator interface {
	Capability(s Shape) (Capability, error)
}

// Library maps shapes to their capabilities
type Library struct {
	caps map[Shape]Capability
}

// NewLibrary returns a library with the built-in tetrahedron registered
func NewLibrary() *Library {
	lib := &Library{caps: make(map[Shape]Capability)}
	lib.Register(Tet, NewTetCapability())
	return lib
}

// Register installs or replaces the capability of a shape
func (l *Library) Register(s Shape, c Capability) {
	l.caps[s] = c
}

// Capability implements Evaluator
func (l *Library) Capability(s Shape) (Capability, error) {
	c, ok := l.caps[s]
	if !ok {
		return nil, errors.WrapConfiguration(errors.ErrUnsupportedShape, "element", "Capability", s.String())
	}
	return c, nil
}
