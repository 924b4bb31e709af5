package spill

import (
	"fmt"
	"sync"

	"github.com/notargets/StressRefine/errors"
)

// Blob is the stiffness of one element in local numbering
type Blob struct {
	ElementID int
	Functions []int     // local dof -> global function
	Values    []float64 // n×n, row major
}

// N returns the number of local dofs
func (b *Blob) N() int { return len(b.Functions) }

// At returns entry (i,j) of the element matrix
func (b *Blob) At(i, j int) float64 { return b.Values[i*len(b.Functions)+j] }

// Store caches element stiffness between the compute and merge phases.
// Put may be called concurrently; Take reads a blob once and evicts it.
type Store interface {
	Put(b *Blob) error
	Take(elementID int) (*Blob, error)
	Len() int
	Close() error
}

// MemoryStore keeps every blob in memory
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[int]*Blob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[int]*Blob)}
}

func (s *MemoryStore) Put(b *Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[b.ElementID] = b
	return nil
}

func (s *MemoryStore) Take(id int) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, missing(id)
	}
	delete(s.blobs, id)
	return b, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[int]*Blob)
	return nil
}

func missing(id int) error {
	return errors.WrapResource(&errors.ElementError{ElementID: id, Err: errors.ErrScratchIO},
		"spill", "Take", "no stored stiffness")
}

// Policy decides whether element stiffness stays in memory
type Policy struct {
	Budget int64 // bytes, 0 means unlimited
}

// EstimateBytes returns the storage of an n×n element matrix
func EstimateBytes(n int) int64 { return 8 * int64(n) * int64(n) }

// Size is the local dof count of one element
type Size struct {
	ElementID int
	N         int
}

// Select returns a memory store when every element fits the budget, a
// file store in dir otherwise. A single element above the budget is a
// resource error.
func (p Policy) Select(sizes []Size, dir string) (Store, error) {
	if p.Budget <= 0 {
		return NewMemoryStore(), nil
	}
	var total int64
	for _, s := range sizes {
		b := EstimateBytes(s.N)
		if b > p.Budget {
			return nil, errors.WrapResource(&errors.ElementError{ElementID: s.ElementID, Err: errors.ErrElementTooLarge},
				"spill", "Select", fmt.Sprintf("%d bytes, budget %d", b, p.Budget))
		}
		total += b
	}
	if total <= p.Budget {
		return NewMemoryStore(), nil
	}
	return NewFileStore(dir)
}
