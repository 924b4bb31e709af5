package partitions

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/StressRefine/element"
)

// PartitionBuilder constructs partitions from mesh connectivity
type PartitionBuilder struct {
	Mesh *MeshConnectivity

	// Partitioning parameters; NumPartitions wins when set
	TargetPartitionSize int
	NumPartitions       int
	Strategy            PartitionStrategy
}

// MeshConnectivity provides the mesh topology needed for partitioning
type MeshConnectivity struct {
	NumElements  int
	ElementTypes []element.Shape
	DofsPerElem  []int // local dofs of each element, for cost estimates

	// Face connectivity, EToE[k][f] == k on the boundary
	EToE [][]int
	EToF [][]int
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically
	GraphPartition                          // Face-connected blocks grown breadth first
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "roundrobin"
	case GraphPartition:
		return "graph"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration name to a strategy
func ParseStrategy(name string) (PartitionStrategy, error) {
	for _, s := range []PartitionStrategy{BlockPartition, RoundRobin, GraphPartition} {
		if s.String() == name {
			return s, nil
		}
	}
	return BlockPartition, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.Mesh == nil || pb.Mesh.NumElements < 1 {
		return nil, fmt.Errorf("no elements to partition")
	}
	numPartitions := pb.calculateNumPartitions()

	eToP, err := pb.partitionElements(numPartitions)
	if err != nil {
		return nil, err
	}
	partitions := pb.createPartitions(eToP, numPartitions)

	layout := &PartitionLayout{
		Partitions:     partitions,
		KpartMax:       calculateKpartMax(partitions),
		TotalElements:  pb.Mesh.NumElements,
		NumPartitions:  numPartitions,
		EToP:           eToP,
		InterfaceFaces: pb.countInterfaceFaces(eToP),
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// calculateNumPartitions determines the partition count, never more
// partitions than elements
func (pb *PartitionBuilder) calculateNumPartitions() int {
	numPartitions := pb.NumPartitions
	if numPartitions < 1 && pb.TargetPartitionSize > 0 {
		numPartitions = int(math.Ceil(float64(pb.Mesh.NumElements) / float64(pb.TargetPartitionSize)))
	}
	if numPartitions < 1 {
		numPartitions = 1
	}
	if numPartitions > pb.Mesh.NumElements {
		numPartitions = pb.Mesh.NumElements
	}
	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	K := pb.Mesh.NumElements
	eToP := make([]int, K)

	switch pb.Strategy {
	case BlockPartition:
		elementsPerPartition := int(math.Ceil(float64(K) / float64(numPartitions)))
		for i := 0; i < K; i++ {
			eToP[i] = i / elementsPerPartition
			if eToP[i] >= numPartitions {
				eToP[i] = numPartitions - 1
			}
		}

	case RoundRobin:
		for i := 0; i < K; i++ {
			eToP[i] = i % numPartitions
		}

	case GraphPartition:
		if len(pb.Mesh.EToE) != K {
			return nil, fmt.Errorf("graph partitioning needs EToE for %d elements, have %d",
				K, len(pb.Mesh.EToE))
		}
		pb.growPartitions(eToP, numPartitions)

	default:
		return nil, fmt.Errorf("unsupported partition strategy %s", pb.Strategy)
	}

	return eToP, nil
}

// growPartitions fills one partition at a time breadth first over face
// neighbors. Each seed is the lowest unassigned element touching an
// assigned one, or the lowest unassigned element when there is none.
func (pb *PartitionBuilder) growPartitions(eToP []int, numPartitions int) {
	K := len(eToP)
	for i := range eToP {
		eToP[i] = -1
	}
	target := func(p int) int {
		// spread the remainder over the first partitions
		n := K / numPartitions
		if p < K%numPartitions {
			n++
		}
		return n
	}
	nextSeed := func() int {
		best := -1
		for k, p := range eToP {
			if p < 0 {
				continue
			}
			for _, nb := range pb.Mesh.EToE[k] {
				if eToP[nb] < 0 && (best < 0 || nb < best) {
					best = nb
				}
			}
		}
		if best >= 0 {
			return best
		}
		for k, p := range eToP {
			if p < 0 {
				return k
			}
		}
		return -1
	}

	var (
		part, filled int
		queue        []int
	)
	for assigned := 0; assigned < K; {
		if len(queue) == 0 {
			seed := nextSeed()
			queue = append(queue, seed)
			eToP[seed] = part
			filled++
			assigned++
		}
		k := queue[0]
		queue = queue[1:]
		nbrs := append([]int(nil), pb.Mesh.EToE[k]...)
		sort.Ints(nbrs)
		for _, nb := range nbrs {
			if filled >= target(part) || nb == k || eToP[nb] >= 0 {
				continue
			}
			eToP[nb] = part
			queue = append(queue, nb)
			filled++
			assigned++
		}
		if filled >= target(part) && part < numPartitions-1 {
			part++
			filled = 0
			queue = queue[:0]
		}
	}
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i] = Partition{ID: i, Elements: make([]int, 0)}
	}

	for elem, part := range eToP {
		p := &partitions[part]
		p.Elements = append(p.Elements, elem)
		if pb.Mesh.ElementTypes != nil {
			p.ElementTypes = append(p.ElementTypes, pb.Mesh.ElementTypes[elem])
		}
		if pb.Mesh.DofsPerElem != nil {
			n := int64(pb.Mesh.DofsPerElem[elem])
			p.Cost += n * n
		}
		p.NumElements++
	}

	for i := range partitions {
		partitions[i].TypeGroups = createElementGroups(&partitions[i])
	}
	return partitions
}

// createElementGroups organizes elements by shape within a partition
func createElementGroups(p *Partition) []ElementGroup {
	if len(p.ElementTypes) == 0 {
		return nil
	}
	byType := make(map[element.Shape][]int)
	for i, s := range p.ElementTypes {
		byType[s] = append(byType[s], i)
	}
	groups := make([]ElementGroup, 0, len(byType))
	for s, ids := range byType {
		groups = append(groups, ElementGroup{ElementType: s, Count: len(ids), LocalIDs: ids})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ElementType < groups[j].ElementType })
	return groups
}

func calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

// countInterfaceFaces counts faces whose two elements sit in different partitions
func (pb *PartitionBuilder) countInterfaceFaces(eToP []int) int {
	var n int
	for k, nbrs := range pb.Mesh.EToE {
		for _, nb := range nbrs {
			if nb > k && eToP[nb] != eToP[k] {
				n++
			}
		}
	}
	return n
}

// PartitionStatistics computes load balance metrics
func (layout *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions:  layout.NumPartitions,
		MinElements:    math.MaxInt32,
		AvgElements:    float64(layout.TotalElements) / float64(layout.NumPartitions),
		InterfaceFaces: layout.InterfaceFaces,
	}

	var totalCost int64
	for _, p := range layout.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
		if p.Cost > stats.MaxCost {
			stats.MaxCost = p.Cost
		}
		totalCost += p.Cost
	}

	stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	if totalCost > 0 {
		stats.CostImbalance = float64(stats.MaxCost) * float64(layout.NumPartitions) / float64(totalCost)
	}
	return stats
}

type PartitionStats struct {
	NumPartitions  int
	MinElements    int
	MaxElements    int
	AvgElements    float64
	Imbalance      float64 // MaxElements / AvgElements
	MaxCost        int64
	CostImbalance  float64 // MaxCost / average cost
	InterfaceFaces int
}
