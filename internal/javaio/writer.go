package javaio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// DataWriter is the counterpart of DataReader. The first write error sticks
// and every later call becomes a no-op, so callers can check Err once.
type DataWriter struct {
	w       io.Writer
	written int64
	err     error
	scratch [8]byte
}

func NewDataWriter(w io.Writer) *DataWriter {
	return &DataWriter{w: w}
}

func (dw *DataWriter) Err() error {
	return dw.err
}

func (dw *DataWriter) BytesWritten() int64 {
	return dw.written
}

func (dw *DataWriter) Write(p []byte) (int, error) {
	if dw.err != nil {
		return 0, dw.err
	}
	n, err := dw.w.Write(p)
	dw.written += int64(n)
	if err != nil {
		dw.err = err
	}
	return n, err
}

func (dw *DataWriter) WriteByte(b byte) error {
	dw.scratch[0] = b
	_, err := dw.Write(dw.scratch[:1])
	return err
}

func (dw *DataWriter) WriteBool(v bool) {
	if v {
		dw.WriteByte(1)
	} else {
		dw.WriteByte(0)
	}
}

func (dw *DataWriter) WriteU2(v uint16) {
	binary.BigEndian.PutUint16(dw.scratch[:2], v)
	dw.Write(dw.scratch[:2])
}

func (dw *DataWriter) WriteI4(v int32) {
	binary.BigEndian.PutUint32(dw.scratch[:4], uint32(v))
	dw.Write(dw.scratch[:4])
}

func (dw *DataWriter) WriteI8(v int64) {
	binary.BigEndian.PutUint64(dw.scratch[:8], uint64(v))
	dw.Write(dw.scratch[:8])
}

func (dw *DataWriter) WriteF4(v float32) {
	binary.BigEndian.PutUint32(dw.scratch[:4], math.Float32bits(v))
	dw.Write(dw.scratch[:4])
}

// WriteCount writes a slice length as int32
func (dw *DataWriter) WriteCount(n int) {
	if n > math.MaxInt32 {
		dw.fail(fmt.Errorf("element count too large: %d", n))
		return
	}
	dw.WriteI4(int32(n))
}

// WriteUTF writes s the way DataOutputStream.writeUTF does
func (dw *DataWriter) WriteUTF(s string) {
	data := EncodeModifiedUTF8(s)
	if len(data) > math.MaxUint16 {
		dw.fail(fmt.Errorf("encoded string too long: %d bytes", len(data)))
		return
	}
	dw.WriteU2(uint16(len(data)))
	dw.Write(data)
}

func (dw *DataWriter) fail(err error) {
	if dw.err == nil {
		dw.err = err
	}
}
