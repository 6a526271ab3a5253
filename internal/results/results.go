package results

import (
	"errors"
	"fmt"
	"time"

	"github.com/mabhi256/jprof/internal/javaio"
)

var ErrCannotCompare = errors.New("snapshots cannot be compared")

// Snapshot is a results payload. Implementations serialize themselves so the
// snapshot codec can treat them as opaque.
type Snapshot interface {
	BeginTime() time.Time
	TimeTaken() time.Time
	Duration() time.Duration
	Encode(w *javaio.DataWriter) error
	Decode(r *javaio.DataReader) error
	String() string
}

// Base carries the timestamps every payload starts with, as unix milliseconds
type Base struct {
	BeginMillis int64
	TakenMillis int64
}

func NewBase(begin, taken time.Time) Base {
	return Base{BeginMillis: begin.UnixMilli(), TakenMillis: taken.UnixMilli()}
}

func (b *Base) BeginTime() time.Time {
	return time.UnixMilli(b.BeginMillis)
}

func (b *Base) TimeTaken() time.Time {
	return time.UnixMilli(b.TakenMillis)
}

// Duration is the time covered by the results
func (b *Base) Duration() time.Duration {
	return time.Duration(b.TakenMillis-b.BeginMillis) * time.Millisecond
}

func (b *Base) encodeBase(w *javaio.DataWriter) {
	w.WriteI8(b.BeginMillis)
	w.WriteI8(b.TakenMillis)
}

func (b *Base) decodeBase(r *javaio.DataReader) error {
	var err error
	if b.BeginMillis, err = r.ReadI8(); err != nil {
		return fmt.Errorf("failed to read begin time: %w", err)
	}
	if b.TakenMillis, err = r.ReadI8(); err != nil {
		return fmt.Errorf("failed to read time taken: %w", err)
	}
	return nil
}
