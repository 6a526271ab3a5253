package tui

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/mabhi256/jprof/internal/results"
	"github.com/mabhi256/jprof/utils"
)

type treeNode struct {
	label    string
	total    int64
	self     int64
	calls    int32
	expanded bool
	children []*treeNode
}

type treeLine struct {
	node  *treeNode
	depth int
}

// buildTree turns the per-thread calling-context trees into display nodes,
// one top-level node per thread. Memory results have no call tree.
func buildTree(res results.Snapshot, view results.View) *treeNode {
	cpu, ok := res.(*results.CPUResults)
	if !ok {
		return nil
	}

	root := &treeNode{label: "All threads", expanded: true}
	for _, t := range cpu.Threads {
		if t.Root == nil {
			continue
		}
		thread := convertNode(cpu, t.Root, view)
		thread.label = t.Name
		root.total += thread.total
		root.children = append(root.children, thread)
	}
	sortChildren(root)
	return root
}

func convertNode(cpu *results.CPUResults, n *results.Node, view results.View) *treeNode {
	out := &treeNode{
		total: n.TotalTime0,
		self:  n.SelfTime0,
		calls: n.Calls,
	}
	if n.MethodID != results.RootMethodID {
		out.label = cpu.Method(n.MethodID).Name(view)
	}
	for _, c := range n.Children {
		out.children = append(out.children, convertNode(cpu, c, view))
	}
	sortChildren(out)
	return out
}

func sortChildren(n *treeNode) {
	slices.SortStableFunc(n.children, func(a, b *treeNode) int {
		return cmp.Compare(b.total, a.total)
	})
}

// visibleLines flattens the expanded part of the tree below root
func visibleLines(root *treeNode) []treeLine {
	if root == nil {
		return nil
	}
	var lines []treeLine
	var walk func(n *treeNode, depth int)
	walk = func(n *treeNode, depth int) {
		lines = append(lines, treeLine{node: n, depth: depth})
		if n.expanded {
			for _, c := range n.children {
				walk(c, depth+1)
			}
		}
	}
	for _, c := range root.children {
		walk(c, 0)
	}
	return lines
}

func renderTreeLine(l treeLine, grandTotal int64, width int) string {
	marker := "  "
	if len(l.node.children) > 0 {
		marker = "▸ "
		if l.node.expanded {
			marker = "▾ "
		}
	}

	stats := fmt.Sprintf("%7s  %9s  self %9s",
		utils.FormatPercent(l.node.total, grandTotal),
		utils.FormatNanos(l.node.total),
		utils.FormatNanos(l.node.self))
	if l.depth > 0 {
		stats += fmt.Sprintf("  %d calls", l.node.calls)
	}

	labelWidth := max(width-len(stats)-2*l.depth-4, 10)
	label := TruncateString(l.node.label, labelWidth)
	return fmt.Sprintf("%s%s%-*s  %s", strings.Repeat("  ", l.depth), marker, labelWidth, label, stats)
}

func (m *Model) renderTree(height int) string {
	if m.tree == nil {
		return MutedStyle.Render("No call tree for " + m.snapshot.Type().String() + " snapshots")
	}
	if len(m.lines) == 0 {
		return MutedStyle.Render("No samples collected")
	}

	m.offset = clampOffset(m.offset, m.cursor, height)
	end := min(m.offset+height, len(m.lines))

	var out []string
	for i := m.offset; i < end; i++ {
		line := renderTreeLine(m.lines[i], m.tree.total, m.width)
		if i == m.cursor {
			line = SelectedStyle.Render(line)
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// clampOffset keeps the cursor inside a window of height rows
func clampOffset(offset, cursor, height int) int {
	height = max(height, 1)
	if cursor < offset {
		return cursor
	}
	if cursor >= offset+height {
		return cursor - height + 1
	}
	return offset
}

func (m *Model) toggleSelected() {
	if m.cursor >= len(m.lines) {
		return
	}
	n := m.lines[m.cursor].node
	if len(n.children) == 0 {
		return
	}
	n.expanded = !n.expanded
	m.lines = visibleLines(m.tree)
}
