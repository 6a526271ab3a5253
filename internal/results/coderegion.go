package results

import (
	"fmt"
	"time"

	"github.com/mabhi256/jprof/internal/javaio"
	"github.com/mabhi256/jprof/utils"
)

// CodeRegionResults holds the per-invocation times of one instrumented code
// fragment. Only the most recent invocations are kept, TotalInvocations
// counts all of them.
type CodeRegionResults struct {
	Base
	TotalInvocations int64
	Times            []int64 // ns
}

type RegionSummary struct {
	Invocations int64
	Recorded    int
	Min         time.Duration
	Max         time.Duration
	Avg         time.Duration
	StdDev      time.Duration
}

func NewCodeRegionResults(begin, taken time.Time, total int64, times []int64) *CodeRegionResults {
	return &CodeRegionResults{
		Base:             NewBase(begin, taken),
		TotalInvocations: total,
		Times:            times,
	}
}

func (c *CodeRegionResults) Summary() RegionSummary {
	s := RegionSummary{Invocations: c.TotalInvocations, Recorded: len(c.Times)}
	if len(c.Times) == 0 {
		return s
	}

	minT, maxT, sum := c.Times[0], c.Times[0], int64(0)
	for _, t := range c.Times {
		minT = min(minT, t)
		maxT = max(maxT, t)
		sum += t
	}
	s.Min = time.Duration(minT)
	s.Max = time.Duration(maxT)
	s.Avg = time.Duration(sum / int64(len(c.Times)))
	s.StdDev = time.Duration(utils.StdDev(c.Times))
	return s
}

func (c *CodeRegionResults) String() string {
	s := c.Summary()
	return fmt.Sprintf("Code region results: %d invocations, avg %s", s.Invocations, s.Avg)
}

func (c *CodeRegionResults) Encode(w *javaio.DataWriter) error {
	c.encodeBase(w)
	w.WriteI8(c.TotalInvocations)
	w.WriteCount(len(c.Times))
	for _, t := range c.Times {
		w.WriteI8(t)
	}
	return w.Err()
}

func (c *CodeRegionResults) Decode(r *javaio.DataReader) error {
	if err := c.decodeBase(r); err != nil {
		return err
	}

	var err error
	if c.TotalInvocations, err = r.ReadI8(); err != nil {
		return fmt.Errorf("failed to read invocation count: %w", err)
	}

	n, err := r.ReadCount()
	if err != nil {
		return fmt.Errorf("failed to read time count: %w", err)
	}
	c.Times = make([]int64, 0, min(n, 1<<16))
	for range n {
		t, err := r.ReadI8()
		if err != nil {
			return fmt.Errorf("failed to read invocation time: %w", err)
		}
		c.Times = append(c.Times, t)
	}
	return nil
}
