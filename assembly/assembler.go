package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notargets/StressRefine/constraint"
	"github.com/notargets/StressRefine/element"
	"github.com/notargets/StressRefine/errors"
	"github.com/notargets/StressRefine/numbering"
	"github.com/notargets/StressRefine/partitions"
	"github.com/notargets/StressRefine/solution"
	"github.com/notargets/StressRefine/spill"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Model is the mesh as seen by the assembler. Elements()[k].ID must be
// k: partitions, spilled blobs and volume forces are all keyed by id.
type Model interface {
	Elements() []*element.Element
	NumNodes() int
	VolumeForce(k int) ([3]float64, bool)
	Connectivity() *partitions.MeshConnectivity
}

// Options configure an Assembler
type Options struct {
	Workers         int // parallel element tasks, <= 1 computes sequentially
	PartitionsPer   int // partitions per worker
	Strategy        partitions.PartitionStrategy
	Spill           spill.Policy
	ScratchDir      string
	SoftSprings     bool
	SoftSpringScale float64 // relative to the mean diagonal
	RHSMode         constraint.Mode
}

// Input is everything one pass of assembly reads
type Input struct {
	Model       Model
	Evaluator   element.Evaluator
	Numbering   numbering.Result
	Constraints *constraint.Processor
	RHS         *solution.Store // allocated to Numbering.NumEquations
}

// Stats describes one assembly
type Stats struct {
	Elements   int
	Spilled    bool
	Partitions partitions.PartitionStats
	NNZ        int
	Elapsed    time.Duration
}

type Assembler struct {
	opts   Options
	logger *slog.Logger
}

func NewAssembler(opts Options, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PartitionsPer < 1 {
		opts.PartitionsPer = 4
	}
	if opts.SoftSpringScale <= 0 {
		opts.SoftSpringScale = 1.e-8
	}
	return &Assembler{opts: opts, logger: logger.With("component", "assembly")}
}

// Assemble computes every active element stiffness, merges them in
// ascending element id order and applies volume forces, soft springs and
// penalty constraints. The result does not depend on the worker count.
func (a *Assembler) Assemble(in Input) (sys *System, stats Stats, err error) {
	start := time.Now()
	elems := in.Model.Elements()
	if err := element.CheckIDs(elems); err != nil {
		return nil, stats, errors.WrapConfiguration(err, "assembly", "Assemble", "")
	}

	var (
		active []*element.Element
		sizes  []spill.Size
	)
	for _, el := range elems {
		if el.Inactive {
			continue
		}
		c, cerr := in.Evaluator.Capability(el.Shape)
		if cerr != nil {
			return nil, stats, &errors.ElementError{ElementID: el.ID, Err: cerr}
		}
		if n := 3 * c.NumModes(el); n != len(el.Functions) {
			return nil, stats, errors.WrapConfiguration(&errors.ElementError{ElementID: el.ID, Err: errors.ErrMissingFunction},
				"assembly", "Assemble", fmt.Sprintf("%d local dofs, %d functions", n, len(el.Functions)))
		}
		active = append(active, el)
		sizes = append(sizes, spill.Size{ElementID: el.ID, N: len(el.Functions)})
	}
	stats.Elements = len(active)

	store, err := a.opts.Spill.Select(sizes, a.opts.ScratchDir)
	if err != nil {
		return nil, stats, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	_, stats.Spilled = store.(*spill.FileStore)

	if a.opts.Workers > 1 && len(active) > 1 {
		stats.Partitions, err = a.computeParallel(in, store)
	} else {
		for _, el := range active {
			if err = computeElement(in.Evaluator, el, store); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, stats, err
	}

	n := in.Numbering.NumEquations
	sys = NewSystem(n, in.RHS)
	rhs := in.RHS.Vector()
	in.Constraints.Begin(rhs, a.opts.RHSMode, in.Numbering.Equations)

	for _, el := range active {
		blob, terr := store.Take(el.ID)
		if terr != nil {
			return nil, stats, terr
		}
		ke := mat.NewSymDense(blob.N(), blob.Values)
		sys.AddBlock(in.Numbering.EquationsOf(blob.Functions), ke)
		in.Constraints.FoldElement(blob.Functions, ke, in.Numbering, rhs)
	}

	if err = a.addVolumeForces(in, active, sys); err != nil {
		return nil, stats, err
	}
	if a.opts.SoftSprings {
		a.addSoftSprings(in, sys)
	}
	in.Constraints.ApplyPenalties(sys, in.Numbering)

	stats.NNZ = sys.NNZ()
	stats.Elapsed = time.Since(start)
	a.logger.Debug("assembled",
		"equations", n,
		"elements", stats.Elements,
		"nnz", stats.NNZ,
		"spilled", stats.Spilled,
		"elapsed", stats.Elapsed)
	return sys, stats, nil
}

func computeElement(ev element.Evaluator, el *element.Element, store spill.Store) error {
	c, err := ev.Capability(el.Shape)
	if err != nil {
		return err
	}
	ke, err := c.Stiffness(el)
	if err != nil {
		return err
	}
	n := ke.SymmetricDim()
	blob := &spill.Blob{
		ElementID: el.ID,
		Functions: append([]int(nil), el.Functions...),
		Values:    make([]float64, n*n),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			blob.Values[i*n+j] = ke.At(i, j)
		}
	}
	return store.Put(blob)
}

// computeParallel runs one bounded task per partition; tasks share
// nothing but the store
func (a *Assembler) computeParallel(in Input, store spill.Store) (partitions.PartitionStats, error) {
	pb := &partitions.PartitionBuilder{
		Mesh:          in.Model.Connectivity(),
		NumPartitions: a.opts.Workers * a.opts.PartitionsPer,
		Strategy:      a.opts.Strategy,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		return partitions.PartitionStats{}, errors.WrapConfiguration(err, "assembly", "computeParallel", "")
	}
	elems := in.Model.Elements()

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(a.opts.Workers)
	for _, p := range layout.Partitions {
		g.Go(func() error {
			for _, k := range p.Elements {
				if ctx.Err() != nil {
					return nil
				}
				el := elems[k]
				if el.Inactive {
					continue
				}
				if err := computeElement(in.Evaluator, el, store); err != nil {
					return err
				}
			}
			return nil
		})
	}
	stats := layout.PartitionStatistics()
	return stats, g.Wait()
}

func (a *Assembler) addVolumeForces(in Input, active []*element.Element, sys *System) error {
	for _, el := range active {
		b, ok := in.Model.VolumeForce(el.ID)
		if !ok {
			continue
		}
		c, err := in.Evaluator.Capability(el.Shape)
		if err != nil {
			return err
		}
		f, err := c.VolumeForce(el, b)
		if err != nil {
			return err
		}
		for i, fn := range el.Functions {
			if eq := in.Numbering.Equation(fn); eq >= 0 {
				sys.AddRHS(eq, f[i])
			}
		}
	}
	return nil
}

// addSoftSprings adds a weak spring to every free vertex-mode equation so
// unsupported rigid body motion does not make K singular
func (a *Assembler) addSoftSprings(in Input, sys *System) {
	k := a.opts.SoftSpringScale * sys.MeanDiagonal()
	nv := 3 * in.Model.NumNodes()
	for fn := 0; fn < nv && fn < len(in.Numbering.Equations); fn++ {
		if eq := in.Numbering.Equation(fn); eq >= 0 {
			sys.AddDiagonal(eq, k)
		}
	}
}
