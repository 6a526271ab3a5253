package results

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/mabhi256/jprof/internal/javaio"
)

type ClassAllocation struct {
	Name    string
	Bytes   int64
	Objects int64
}

// AllocResults records allocated objects and bytes per class
type AllocResults struct {
	Base
	Classes []ClassAllocation
}

func NewAllocResults(begin, taken time.Time, classes []ClassAllocation) *AllocResults {
	return &AllocResults{Base: NewBase(begin, taken), Classes: classes}
}

func (a *AllocResults) String() string {
	return fmt.Sprintf("Memory allocation results: %d classes", len(a.Classes))
}

func (a *AllocResults) TotalBytes() int64 {
	var total int64
	for _, c := range a.Classes {
		total += c.Bytes
	}
	return total
}

// ByBytes returns the classes sorted by allocated bytes, largest first
func (a *AllocResults) ByBytes() []ClassAllocation {
	sorted := slices.Clone(a.Classes)
	slices.SortFunc(sorted, func(x, y ClassAllocation) int {
		if c := cmp.Compare(y.Bytes, x.Bytes); c != 0 {
			return c
		}
		return cmp.Compare(x.Name, y.Name)
	})
	return sorted
}

func (a *AllocResults) Encode(w *javaio.DataWriter) error {
	a.encodeBase(w)
	w.WriteCount(len(a.Classes))
	for _, c := range a.Classes {
		w.WriteUTF(c.Name)
		w.WriteI8(c.Bytes)
		w.WriteI8(c.Objects)
	}
	return w.Err()
}

func (a *AllocResults) Decode(r *javaio.DataReader) error {
	if err := a.decodeBase(r); err != nil {
		return err
	}

	n, err := r.ReadCount()
	if err != nil {
		return fmt.Errorf("failed to read class count: %w", err)
	}
	a.Classes = make([]ClassAllocation, 0, min(n, 1<<16))
	for i := range n {
		var c ClassAllocation
		if c.Name, err = r.ReadUTF(); err != nil {
			return fmt.Errorf("failed to read class %d: %w", i, err)
		}
		if c.Bytes, err = r.ReadI8(); err != nil {
			return fmt.Errorf("failed to read bytes of %s: %w", c.Name, err)
		}
		if c.Objects, err = r.ReadI8(); err != nil {
			return fmt.Errorf("failed to read objects of %s: %w", c.Name, err)
		}
		a.Classes = append(a.Classes, c)
	}
	return nil
}

type ClassLiveness struct {
	Name                string
	LiveBytes           int64
	LiveObjects         int64
	AllocatedObjects    int64
	TrackedAllocObjects int64
	AvgAge              float32 // in GC epochs
	SurvivingGens       int32
}

// LivenessResults records the objects still alive per class
type LivenessResults struct {
	Base
	CurrentEpoch int32
	Classes      []ClassLiveness
}

func NewLivenessResults(begin, taken time.Time, epoch int32, classes []ClassLiveness) *LivenessResults {
	return &LivenessResults{Base: NewBase(begin, taken), CurrentEpoch: epoch, Classes: classes}
}

func (l *LivenessResults) String() string {
	return fmt.Sprintf("Memory liveness results: %d classes, epoch %d", len(l.Classes), l.CurrentEpoch)
}

func (l *LivenessResults) TotalLiveBytes() int64 {
	var total int64
	for _, c := range l.Classes {
		total += c.LiveBytes
	}
	return total
}

func (l *LivenessResults) ByLiveBytes() []ClassLiveness {
	sorted := slices.Clone(l.Classes)
	slices.SortFunc(sorted, func(x, y ClassLiveness) int {
		if c := cmp.Compare(y.LiveBytes, x.LiveBytes); c != 0 {
			return c
		}
		return cmp.Compare(x.Name, y.Name)
	})
	return sorted
}

func (l *LivenessResults) Encode(w *javaio.DataWriter) error {
	l.encodeBase(w)
	w.WriteI4(l.CurrentEpoch)
	w.WriteCount(len(l.Classes))
	for _, c := range l.Classes {
		w.WriteUTF(c.Name)
		w.WriteI8(c.LiveBytes)
		w.WriteI8(c.LiveObjects)
		w.WriteI8(c.AllocatedObjects)
		w.WriteI8(c.TrackedAllocObjects)
		w.WriteF4(c.AvgAge)
		w.WriteI4(c.SurvivingGens)
	}
	return w.Err()
}

func (l *LivenessResults) Decode(r *javaio.DataReader) error {
	if err := l.decodeBase(r); err != nil {
		return err
	}

	var err error
	if l.CurrentEpoch, err = r.ReadI4(); err != nil {
		return fmt.Errorf("failed to read epoch: %w", err)
	}

	n, err := r.ReadCount()
	if err != nil {
		return fmt.Errorf("failed to read class count: %w", err)
	}
	l.Classes = make([]ClassLiveness, 0, min(n, 1<<16))
	for i := range n {
		var c ClassLiveness
		if c.Name, err = r.ReadUTF(); err != nil {
			return fmt.Errorf("failed to read class %d: %w", i, err)
		}
		fields := []*int64{&c.LiveBytes, &c.LiveObjects, &c.AllocatedObjects, &c.TrackedAllocObjects}
		for _, f := range fields {
			if *f, err = r.ReadI8(); err != nil {
				return fmt.Errorf("failed to read counters of %s: %w", c.Name, err)
			}
		}
		if c.AvgAge, err = r.ReadF4(); err != nil {
			return fmt.Errorf("failed to read age of %s: %w", c.Name, err)
		}
		if c.SurvivingGens, err = r.ReadI4(); err != nil {
			return fmt.Errorf("failed to read generations of %s: %w", c.Name, err)
		}
		l.Classes = append(l.Classes, c)
	}
	return nil
}
