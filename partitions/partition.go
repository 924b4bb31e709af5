package partitions

import (
	"fmt"

	"github.com/notargets/StressRefine/element"
)

// Partition represents a collection of elements whose stiffness is
// computed together by one worker
type Partition struct {
	// Unique identifier for this partition
	ID int

	// Element membership
	Elements    []int // Global element indices in this partition, ascending
	NumElements int

	// Mixed element support
	ElementTypes []element.Shape // Shape of each element
	TypeGroups   []ElementGroup  // Grouped by shape

	// Estimated work: sum of (local dofs)² over the elements
	Cost int64
}

// ElementGroup represents elements of the same shape within a partition
type ElementGroup struct {
	ElementType element.Shape
	Count       int
	LocalIDs    []int // Indices within the partition
}

// PartitionLayout manages the complete decomposition of the element set
type PartitionLayout struct {
	Partitions []Partition

	KpartMax      int // max(NumElements) across all partitions
	TotalElements int
	NumPartitions int

	// Element to partition mapping
	EToP []int // element k belongs to partition EToP[k]

	// Faces shared by elements of different partitions
	InterfaceFaces int
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks that every element belongs to exactly one
// partition and that the sizes are consistent
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.EToP) != pl.TotalElements {
		return fmt.Errorf("EToP has %d entries for %d elements", len(pl.EToP), pl.TotalElements)
	}
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions, NumPartitions %d", len(pl.Partitions), pl.NumPartitions)
	}
	seen := make([]bool, pl.TotalElements)
	actualMax := 0
	for _, p := range pl.Partitions {
		if p.NumElements != len(p.Elements) {
			return fmt.Errorf("partition %d: NumElements %d != %d elements",
				p.ID, p.NumElements, len(p.Elements))
		}
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		for _, k := range p.Elements {
			if k < 0 || k >= pl.TotalElements {
				return fmt.Errorf("partition %d: element %d out of range", p.ID, k)
			}
			if seen[k] {
				return fmt.Errorf("element %d in more than one partition", k)
			}
			if pl.EToP[k] != p.ID {
				return fmt.Errorf("element %d: EToP %d, found in partition %d", k, pl.EToP[k], p.ID)
			}
			seen[k] = true
		}
	}
	for k, ok := range seen {
		if !ok {
			return fmt.Errorf("element %d is not in any partition", k)
		}
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	return nil
}
