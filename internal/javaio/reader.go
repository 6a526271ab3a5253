package javaio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// DataReader reads the big-endian primitives written by java.io.DataOutputStream
type DataReader struct {
	reader    *bufio.Reader
	bytesRead int64
}

func NewDataReader(reader io.Reader) *DataReader {
	if br, ok := reader.(*bufio.Reader); ok {
		return &DataReader{reader: br}
	}
	return &DataReader{
		reader: bufio.NewReader(reader),
	}
}

func (dr *DataReader) BytesRead() int64 {
	return dr.bytesRead
}

// ReadNBytes reads exactly n bytes and tracks position
func (dr *DataReader) ReadNBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid byte count: %d", n)
	}
	buf := make([]byte, n)
	bytesRead, err := io.ReadFull(dr.reader, buf)
	dr.bytesRead += int64(bytesRead)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadByte reads one byte. A clean end of stream is reported as io.EOF.
func (dr *DataReader) ReadByte() (byte, error) {
	b, err := dr.reader.ReadByte()
	if err != nil {
		return 0, err
	}
	dr.bytesRead++
	return b, nil
}

func (dr *DataReader) ReadBool() (bool, error) {
	b, err := dr.ReadByte()
	if err != nil {
		return false, eofToUnexpected(err)
	}
	return b != 0, nil
}

func (dr *DataReader) ReadU2() (uint16, error) {
	buf, err := dr.ReadNBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func (dr *DataReader) ReadI4() (int32, error) {
	buf, err := dr.ReadNBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf)), nil
}

func (dr *DataReader) ReadI8() (int64, error) {
	buf, err := dr.ReadNBytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf)), nil
}

func (dr *DataReader) ReadF4() (float32, error) {
	buf, err := dr.ReadNBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(buf)), nil
}

// ReadUTF reads a u2 length followed by that many bytes of modified UTF-8
func (dr *DataReader) ReadUTF() (string, error) {
	length, err := dr.ReadU2()
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}

	data, err := dr.ReadNBytes(int(length))
	if err != nil {
		return "", fmt.Errorf("failed to read string data: %w", err)
	}

	return DecodeModifiedUTF8(data)
}

// ReadCount reads an int32 element count and rejects negative values
func (dr *DataReader) ReadCount() (int, error) {
	n, err := dr.ReadI4()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid element count: %d", n)
	}
	return int(n), nil
}

// Skip skips n bytes in the stream
func (dr *DataReader) Skip(n int) error {
	discarded, err := dr.reader.Discard(n)
	dr.bytesRead += int64(discarded)
	if err != nil {
		return fmt.Errorf("failed to skip %d bytes: %w", n, eofToUnexpected(err))
	}
	return nil
}

func eofToUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
