package spill

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/notargets/StressRefine/errors"
)

type record struct {
	file   int
	offset int64
	length int
}

// FileStore writes blobs to two scratch files, even element ids to one
// and odd ids to the other. A file is truncated once all its records
// have been taken.
type FileStore struct {
	mu    sync.Mutex
	files [2]*os.File
	ends  [2]int64
	live  [2]int
	index map[int]record
}

func NewFileStore(dir string) (*FileStore, error) {
	s := &FileStore{index: make(map[int]record)}
	for i := range s.files {
		f, err := os.CreateTemp(dir, fmt.Sprintf("stiffness-%d-*.bin", i))
		if err != nil {
			s.Close()
			return nil, errors.WrapResource(fmt.Errorf("%w: %v", errors.ErrScratchIO, err),
				"spill", "NewFileStore", dir)
		}
		s.files[i] = f
	}
	return s, nil
}

func (s *FileStore) Put(b *Blob) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return s.ioError("Put", b.ElementID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.index[b.ElementID]; dup {
		return errors.WrapResource(&errors.ElementError{ElementID: b.ElementID, Err: errors.ErrScratchIO},
			"spill", "Put", "element stored twice")
	}
	k := b.ElementID & 1
	if _, err := s.files[k].WriteAt(buf.Bytes(), s.ends[k]); err != nil {
		return s.ioError("Put", b.ElementID, err)
	}
	s.index[b.ElementID] = record{file: k, offset: s.ends[k], length: buf.Len()}
	s.ends[k] += int64(buf.Len())
	s.live[k]++
	return nil
}

func (s *FileStore) Take(id int) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.index[id]
	if !ok {
		return nil, missing(id)
	}
	data := make([]byte, rec.length)
	if _, err := s.files[rec.file].ReadAt(data, rec.offset); err != nil {
		return nil, s.ioError("Take", id, err)
	}
	var b Blob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, s.ioError("Take", id, err)
	}
	delete(s.index, id)
	s.live[rec.file]--
	if s.live[rec.file] == 0 {
		if err := s.files[rec.file].Truncate(0); err != nil {
			return nil, s.ioError("Take", id, err)
		}
		s.ends[rec.file] = 0
	}
	return &b, nil
}

func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Close removes the scratch files
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for i, f := range s.files {
		if f == nil {
			continue
		}
		name := f.Name()
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		if err := os.Remove(name); err != nil && first == nil {
			first = err
		}
		s.files[i] = nil
	}
	s.index = make(map[int]record)
	if first != nil {
		return errors.WrapResource(fmt.Errorf("%w: %v", errors.ErrScratchIO, first), "spill", "Close", "")
	}
	return nil
}

// Paths returns the scratch file names, empty after Close
func (s *FileStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p []string
	for _, f := range s.files {
		if f != nil {
			p = append(p, f.Name())
		}
	}
	return p
}

func (s *FileStore) ioError(op string, id int, err error) error {
	return errors.WrapResource(&errors.ElementError{ElementID: id, Err: fmt.Errorf("%w: %v", errors.ErrScratchIO, err)},
		"spill", op, "")
}
