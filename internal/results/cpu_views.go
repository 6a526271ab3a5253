package results

import (
	"cmp"
	"slices"
	"strings"
)

// View is the aggregation level of a flat profile
type View int

const (
	MethodView View = iota
	ClassView
	PackageView
)

func (v View) String() string {
	switch v {
	case ClassView:
		return "classes"
	case PackageView:
		return "packages"
	default:
		return "methods"
	}
}

const defaultPackage = "<default>"

// Name renders m at the given aggregation level
func (m MethodInfo) Name(v View) string {
	switch v {
	case ClassView:
		return m.ClassName
	case PackageView:
		if i := strings.LastIndexByte(m.ClassName, '.'); i > 0 {
			return m.ClassName[:i]
		}
		return defaultPackage
	default:
		if m.MethodName == "" {
			return m.ClassName
		}
		return m.ClassName + "." + m.MethodName
	}
}

// FlatEntry is one hot spot. Total time counts recursive frames once.
type FlatEntry struct {
	Name       string
	Calls      int64
	SelfTime0  int64
	TotalTime0 int64
	SelfTime1  int64
	TotalTime1 int64
}

// FlatProfile aggregates the calling-context trees of the given threads, or
// of all threads when none are given, and sorts by self time.
func (c *CPUResults) FlatProfile(view View, threadIDs ...int64) []FlatEntry {
	entries := make(map[string]*FlatEntry)
	onPath := make(map[string]int)

	var walk func(n *Node)
	walk = func(n *Node) {
		if n.MethodID != RootMethodID {
			name := c.Method(n.MethodID).Name(view)
			e, ok := entries[name]
			if !ok {
				e = &FlatEntry{Name: name}
				entries[name] = e
			}
			e.Calls += int64(n.Calls)
			e.SelfTime0 += n.SelfTime0
			e.SelfTime1 += n.SelfTime1
			if onPath[name] == 0 {
				e.TotalTime0 += n.TotalTime0
				e.TotalTime1 += n.TotalTime1
			}
			onPath[name]++
			defer func() { onPath[name]-- }()
		}
		for _, child := range n.Children {
			walk(child)
		}
	}

	for _, t := range c.Threads {
		if t.Root == nil || (len(threadIDs) > 0 && !slices.Contains(threadIDs, t.ID)) {
			continue
		}
		walk(t.Root)
	}

	flat := make([]FlatEntry, 0, len(entries))
	for _, e := range entries {
		flat = append(flat, *e)
	}
	slices.SortFunc(flat, func(a, b FlatEntry) int {
		if c := cmp.Compare(b.SelfTime0, a.SelfTime0); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return flat
}

// MergedTree folds every thread's tree into one, matching nodes by method
func (c *CPUResults) MergedTree() *Node {
	merged := &Node{MethodID: RootMethodID}
	for _, t := range c.Threads {
		if t.Root != nil {
			mergeInto(merged, t.Root)
		}
	}
	return merged
}

func mergeInto(dst, src *Node) {
	dst.Calls += src.Calls
	dst.TotalTime0 += src.TotalTime0
	dst.SelfTime0 += src.SelfTime0
	dst.TotalTime1 += src.TotalTime1
	dst.SelfTime1 += src.SelfTime1
	for _, child := range src.Children {
		mergeInto(dst.Child(child.MethodID), child)
	}
}

// TotalTime is the wall time recorded across all threads
func (c *CPUResults) TotalTime() int64 {
	var total int64
	for _, t := range c.Threads {
		if t.Root != nil {
			total += t.Root.TotalTime0
		}
	}
	return total
}
