package results

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mabhi256/jprof/utils"
)

type Column struct {
	Title   string
	Width   int
	Numeric bool
}

// Row is one rendered line. Weight is the value the row is ranked by
// (self time or bytes) for charts.
type Row struct {
	Cells  []string
	Weight int64
}

// Table is a payload flattened for display
type Table struct {
	Title   string
	Columns []Column
	Rows    []Row
	Total   int64
}

// Tabulate renders the hot spots or class list of res. view only applies to
// CPU results.
func Tabulate(res Snapshot, view View) Table {
	switch r := res.(type) {
	case *CPUResults:
		return cpuTable(r, view)
	case *AllocResults:
		return allocTable(r)
	case *LivenessResults:
		return livenessTable(r)
	case *CodeRegionResults:
		return regionTable(r)
	default:
		return Table{Title: "Empty"}
	}
}

func cpuTable(c *CPUResults, view View) Table {
	flat := c.FlatProfile(view)
	var self int64
	for _, e := range flat {
		self += e.SelfTime0
	}

	t := Table{
		Title: "Hot spots (" + view.String() + ")",
		Columns: []Column{
			{Title: "Name", Width: 48},
			{Title: "Self time", Width: 12, Numeric: true},
			{Title: "Self %", Width: 8, Numeric: true},
			{Title: "Total time", Width: 12, Numeric: true},
			{Title: "Calls", Width: 8, Numeric: true},
		},
		Total: self,
	}
	if c.CollectingTwoTimeStamps {
		t.Columns = append(t.Columns, Column{Title: "Self CPU", Width: 12, Numeric: true})
	}

	for _, e := range flat {
		cells := []string{
			e.Name,
			utils.FormatNanos(e.SelfTime0),
			utils.FormatPercent(e.SelfTime0, self),
			utils.FormatNanos(e.TotalTime0),
			strconv.FormatInt(e.Calls, 10),
		}
		if c.CollectingTwoTimeStamps {
			cells = append(cells, utils.FormatNanos(e.SelfTime1))
		}
		t.Rows = append(t.Rows, Row{Cells: cells, Weight: e.SelfTime0})
	}
	return t
}

func allocTable(a *AllocResults) Table {
	total := a.TotalBytes()
	t := Table{
		Title: "Allocated objects",
		Columns: []Column{
			{Title: "Class", Width: 48},
			{Title: "Bytes", Width: 12, Numeric: true},
			{Title: "Bytes %", Width: 8, Numeric: true},
			{Title: "Objects", Width: 10, Numeric: true},
		},
		Total: total,
	}
	for _, c := range a.ByBytes() {
		t.Rows = append(t.Rows, Row{
			Cells: []string{
				c.Name,
				utils.MemorySize(c.Bytes).String(),
				utils.FormatPercent(c.Bytes, total),
				strconv.FormatInt(c.Objects, 10),
			},
			Weight: c.Bytes,
		})
	}
	return t
}

func livenessTable(l *LivenessResults) Table {
	total := l.TotalLiveBytes()
	t := Table{
		Title: "Live objects",
		Columns: []Column{
			{Title: "Class", Width: 40},
			{Title: "Live bytes", Width: 12, Numeric: true},
			{Title: "Live %", Width: 8, Numeric: true},
			{Title: "Live objects", Width: 12, Numeric: true},
			{Title: "Allocated", Width: 10, Numeric: true},
			{Title: "Avg age", Width: 8, Numeric: true},
			{Title: "Generations", Width: 11, Numeric: true},
		},
		Total: total,
	}
	for _, c := range l.ByLiveBytes() {
		t.Rows = append(t.Rows, Row{
			Cells: []string{
				c.Name,
				utils.MemorySize(c.LiveBytes).String(),
				utils.FormatPercent(c.LiveBytes, total),
				strconv.FormatInt(c.LiveObjects, 10),
				strconv.FormatInt(c.AllocatedObjects, 10),
				fmt.Sprintf("%.1f", c.AvgAge),
				strconv.Itoa(int(c.SurvivingGens)),
			},
			Weight: c.LiveBytes,
		})
	}
	return t
}

func regionTable(c *CodeRegionResults) Table {
	t := Table{
		Title: "Code fragment invocations",
		Columns: []Column{
			{Title: "Invocation", Width: 12, Numeric: true},
			{Title: "Time", Width: 12, Numeric: true},
		},
	}
	// Times holds the most recent invocations, numbered from the end
	first := c.TotalInvocations - int64(len(c.Times)) + 1
	for i, ns := range c.Times {
		t.Total += ns
		t.Rows = append(t.Rows, Row{
			Cells:  []string{strconv.FormatInt(first+int64(i), 10), utils.FormatDuration(time.Duration(ns))},
			Weight: ns,
		})
	}
	return t
}
