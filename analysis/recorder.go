package analysis

import (
	"fmt"
	"sync"

	"github.com/notargets/StressRefine/errors"
)

// PassRecord summarizes one completed pass
type PassRecord struct {
	Pass         int
	MaxP         int
	NumEquations int
	Error        float64
	MaxStress    float64
}

// Recorder keeps one record per completed pass, in pass order
type Recorder struct {
	mu      sync.Mutex
	records []PassRecord
}

// Append adds the record of the next pass. Records arrive in pass order
// starting at 1; anything else is a programming error.
func (r *Recorder) Append(rec PassRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.Pass != len(r.records)+1 {
		panic(fmt.Sprintf("analysis: record for pass %d after %d passes", rec.Pass, len(r.records)))
	}
	r.records = append(r.records, rec)
}

// Records returns a copy of all records
func (r *Recorder) Records() []PassRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PassRecord(nil), r.records...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *Recorder) Last() (PassRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return PassRecord{}, false
	}
	return r.records[len(r.records)-1], true
}

// Best returns the record with the lowest error, the earliest on ties
func (r *Recorder) Best() (PassRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return PassRecord{}, false
	}
	best := r.records[0]
	for _, rec := range r.records[1:] {
		if rec.Error < best.Error {
			best = rec
		}
	}
	return best, true
}

// Units holds the output conversion of stresses and lengths. It is set
// at most once per run.
type Units struct {
	mu          sync.RWMutex
	set         bool
	stressScale float64
	lengthScale float64
	stressLabel string
	lengthLabel string
}

// Set installs the conversion; a second call fails
func (u *Units) Set(stressScale, lengthScale float64, stressLabel, lengthLabel string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.set {
		return errors.WrapConfiguration(errors.ErrInvalidConfig, "analysis", "Units.Set", "units are already set")
	}
	if stressScale <= 0 || lengthScale <= 0 {
		return errors.WrapConfiguration(errors.ErrInvalidConfig, "analysis", "Units.Set",
			fmt.Sprintf("scales must be positive, got %g and %g", stressScale, lengthScale))
	}
	u.set = true
	u.stressScale, u.lengthScale = stressScale, lengthScale
	u.stressLabel, u.lengthLabel = stressLabel, lengthLabel
	return nil
}

func (u *Units) IsSet() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.set
}

// Stress converts a stress from model units
func (u *Units) Stress(v float64) float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if !u.set {
		return v
	}
	return v * u.stressScale
}

// Length converts a length from model units
func (u *Units) Length(v float64) float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if !u.set {
		return v
	}
	return v * u.lengthScale
}

// Labels returns the stress and length unit labels
func (u *Units) Labels() (stress, length string) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.stressLabel, u.lengthLabel
}
