package results

import (
	"cmp"
	"fmt"
	"slices"
)

// ClassDelta is the change for one class between two memory snapshots,
// computed as second minus first.
type ClassDelta struct {
	Name    string
	Bytes   int64
	Objects int64
}

type MemoryDiff struct {
	Liveness bool
	Classes  []ClassDelta
}

// Diff compares two memory snapshots of the same kind
func Diff(first, second Snapshot) (*MemoryDiff, error) {
	switch a := first.(type) {
	case *AllocResults:
		if b, ok := second.(*AllocResults); ok {
			return DiffAlloc(a, b), nil
		}
	case *LivenessResults:
		if b, ok := second.(*LivenessResults); ok {
			return DiffLiveness(a, b), nil
		}
	}
	return nil, fmt.Errorf("%w: %T vs %T", ErrCannotCompare, first, second)
}

func DiffAlloc(first, second *AllocResults) *MemoryDiff {
	deltas := make(map[string]*ClassDelta)
	get := func(name string) *ClassDelta {
		d, ok := deltas[name]
		if !ok {
			d = &ClassDelta{Name: name}
			deltas[name] = d
		}
		return d
	}

	for _, c := range first.Classes {
		d := get(c.Name)
		d.Bytes -= c.Bytes
		d.Objects -= c.Objects
	}
	for _, c := range second.Classes {
		d := get(c.Name)
		d.Bytes += c.Bytes
		d.Objects += c.Objects
	}

	return &MemoryDiff{Classes: sortDeltas(deltas)}
}

func DiffLiveness(first, second *LivenessResults) *MemoryDiff {
	deltas := make(map[string]*ClassDelta)
	get := func(name string) *ClassDelta {
		d, ok := deltas[name]
		if !ok {
			d = &ClassDelta{Name: name}
			deltas[name] = d
		}
		return d
	}

	for _, c := range first.Classes {
		d := get(c.Name)
		d.Bytes -= c.LiveBytes
		d.Objects -= c.LiveObjects
	}
	for _, c := range second.Classes {
		d := get(c.Name)
		d.Bytes += c.LiveBytes
		d.Objects += c.LiveObjects
	}

	return &MemoryDiff{Liveness: true, Classes: sortDeltas(deltas)}
}

func sortDeltas(deltas map[string]*ClassDelta) []ClassDelta {
	out := make([]ClassDelta, 0, len(deltas))
	for _, d := range deltas {
		if d.Bytes != 0 || d.Objects != 0 {
			out = append(out, *d)
		}
	}
	slices.SortFunc(out, func(a, b ClassDelta) int {
		if c := cmp.Compare(abs(b.Bytes), abs(a.Bytes)); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
