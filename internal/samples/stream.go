package samples

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/mabhi256/jprof/internal/javaio"
)

/*
*	Raw sample stream (.npss)
*
*	"NPSS"                  4 ASCII bytes
*	u1                      stream version
*	gzip body (header mtime: wall clock at recording start), records repeated until EOF:
*	  i8                    sample time (ns, monotonic)
*	  i4 + i8[]             ids of threads unchanged since the previous record
*	  i4 + thread[]         threads that are new or changed
*
*	thread: i8 id, utf name, utf state, i4 frame count,
*	        frames{utf class, utf method, utf file, i4 line, u1 native}
 */
const (
	StreamID      = "NPSS"
	StreamVersion = byte(1)
	StreamExt     = "npss"
)

var ErrInvalidStream = errors.New("not a sample stream")

// IsStream reports whether header starts with the stream id
func IsStream(header []byte) bool {
	return bytes.HasPrefix(header, []byte(StreamID))
}

type Sample struct {
	Time    int64
	Threads []ThreadInfo
}

type Writer struct {
	gz   *gzip.Writer
	buf  *bufio.Writer
	out  *javaio.DataWriter
	last map[int64]ThreadInfo
}

// NewWriter writes the stream header to w and returns a writer for records.
// The current time is stored as the recording origin. Close flushes the
// compressed body but leaves w open.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := w.Write(append([]byte(StreamID), StreamVersion)); err != nil {
		return nil, fmt.Errorf("failed to write stream header: %w", err)
	}

	gz := gzip.NewWriter(w)
	gz.ModTime = time.Now()
	buf := bufio.NewWriter(gz)
	return &Writer{
		gz:   gz,
		buf:  buf,
		out:  javaio.NewDataWriter(buf),
		last: make(map[int64]ThreadInfo),
	}, nil
}

func (w *Writer) WriteSample(ts int64, threads []ThreadInfo) error {
	var same []int64
	var changed []ThreadInfo
	current := make(map[int64]ThreadInfo, len(threads))

	for _, t := range threads {
		current[t.ID] = t
		if prev, ok := w.last[t.ID]; ok && prev.Equal(t) {
			same = append(same, t.ID)
		} else {
			changed = append(changed, t)
		}
	}

	w.out.WriteI8(ts)
	w.out.WriteCount(len(same))
	for _, id := range same {
		w.out.WriteI8(id)
	}
	w.out.WriteCount(len(changed))
	for _, t := range changed {
		writeThread(w.out, t)
	}

	if err := w.out.Err(); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	w.last = current
	return nil
}

func writeThread(out *javaio.DataWriter, t ThreadInfo) {
	out.WriteI8(t.ID)
	out.WriteUTF(t.Name)
	out.WriteUTF(t.State.String())
	out.WriteCount(len(t.Stack))
	for _, f := range t.Stack {
		out.WriteUTF(f.ClassName)
		out.WriteUTF(f.MethodName)
		out.WriteUTF(f.FileName)
		out.WriteI4(f.Line)
		out.WriteBool(f.Native)
	}
}

func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.gz.Close()
}

type Reader struct {
	version byte
	gz      *gzip.Reader
	in      *javaio.DataReader
	last    map[int64]ThreadInfo
}

// NewReader consumes the stream header. Any version byte is accepted.
func NewReader(r io.Reader) (*Reader, error) {
	header := make([]byte, len(StreamID)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStream, err)
	}
	if !IsStream(header) {
		return nil, ErrInvalidStream
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample data: %w", err)
	}

	return &Reader{
		version: header[len(StreamID)],
		gz:      gz,
		in:      javaio.NewDataReader(gz),
		last:    make(map[int64]ThreadInfo),
	}, nil
}

func (r *Reader) Version() byte {
	return r.version
}

// Origin is the wall-clock time the recording started, zero when the stream
// does not carry one. The gzip header stores whole seconds.
func (r *Reader) Origin() time.Time {
	return r.gz.ModTime
}

// Next returns the next sample, or io.EOF after the last one
func (r *Reader) Next() (*Sample, error) {
	ts, err := r.in.ReadI8()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sample time: %w", err)
	}

	sample := &Sample{Time: ts}
	current := make(map[int64]ThreadInfo)

	nSame, err := r.in.ReadCount()
	if err != nil {
		return nil, fmt.Errorf("failed to read carried thread count: %w", err)
	}
	for range nSame {
		id, err := r.in.ReadI8()
		if err != nil {
			return nil, fmt.Errorf("failed to read carried thread id: %w", err)
		}
		t, ok := r.last[id]
		if !ok {
			return nil, fmt.Errorf("carried thread %d not in previous sample", id)
		}
		sample.Threads = append(sample.Threads, t)
		current[id] = t
	}

	nNew, err := r.in.ReadCount()
	if err != nil {
		return nil, fmt.Errorf("failed to read thread count: %w", err)
	}
	for range nNew {
		t, err := readThread(r.in)
		if err != nil {
			return nil, err
		}
		sample.Threads = append(sample.Threads, t)
		current[t.ID] = t
	}

	r.last = current
	return sample, nil
}

func readThread(in *javaio.DataReader) (ThreadInfo, error) {
	var t ThreadInfo
	var err error

	if t.ID, err = in.ReadI8(); err != nil {
		return t, fmt.Errorf("failed to read thread id: %w", err)
	}
	if t.Name, err = in.ReadUTF(); err != nil {
		return t, fmt.Errorf("failed to read thread name: %w", err)
	}
	state, err := in.ReadUTF()
	if err != nil {
		return t, fmt.Errorf("failed to read state of %q: %w", t.Name, err)
	}
	if t.State, err = ParseThreadState(state); err != nil {
		return t, err
	}

	n, err := in.ReadCount()
	if err != nil {
		return t, fmt.Errorf("failed to read frame count of %q: %w", t.Name, err)
	}
	t.Stack = make([]StackFrame, 0, min(n, 1024))
	for range n {
		var f StackFrame
		if f.ClassName, err = in.ReadUTF(); err != nil {
			return t, fmt.Errorf("failed to read frame of %q: %w", t.Name, err)
		}
		if f.MethodName, err = in.ReadUTF(); err != nil {
			return t, fmt.Errorf("failed to read frame of %q: %w", t.Name, err)
		}
		if f.FileName, err = in.ReadUTF(); err != nil {
			return t, fmt.Errorf("failed to read frame of %q: %w", t.Name, err)
		}
		if f.Line, err = in.ReadI4(); err != nil {
			return t, fmt.Errorf("failed to read frame of %q: %w", t.Name, err)
		}
		if f.Native, err = in.ReadBool(); err != nil {
			return t, fmt.Errorf("failed to read frame of %q: %w", t.Name, err)
		}
		t.Stack = append(t.Stack, f)
	}
	return t, nil
}

func (r *Reader) Close() error {
	return r.gz.Close()
}

// Replay feeds every sample of the stream into b and returns the count
func Replay(r *Reader, b *Builder) (int, error) {
	count := 0
	for {
		s, err := r.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		b.AddStacktrace(s.Threads, s.Time)
		count++
	}
}
