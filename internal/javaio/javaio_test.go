package javaio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModifiedUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"ascii", "main", []byte("main")},
		{"nul", "a\x00b", []byte{'a', 0xC0, 0x80, 'b'}},
		{"two byte", "é", []byte{0xC3, 0xA9}},
		{"supplementary", "\U0001F600", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeModifiedUTF8(tt.in)
			assert.Equal(t, tt.want, got)

			back, err := DecodeModifiedUTF8(got)
			require.NoError(t, err)
			assert.Equal(t, tt.in, back)
		})
	}
}

func TestDecodeModifiedUTF8Malformed(t *testing.T) {
	_, err := DecodeModifiedUTF8([]byte{0xE0, 0x80})
	assert.Error(t, err)

	_, err = DecodeModifiedUTF8([]byte{0xFF})
	assert.Error(t, err)
}

func TestWriterReaderPrimitives(t *testing.T) {
	var buf bytes.Buffer
	w := NewDataWriter(&buf)
	w.WriteBool(true)
	w.WriteI4(-7)
	w.WriteI8(1 << 40)
	w.WriteF4(1.5)
	w.WriteUTF("java.lang.Thread")
	w.WriteCount(3)
	require.NoError(t, w.Err())
	assert.Equal(t, int64(buf.Len()), w.BytesWritten())

	r := NewDataReader(&buf)
	b, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)

	i4, err := r.ReadI4()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i4)

	i8, err := r.ReadI8()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), i8)

	f4, err := r.ReadF4()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f4)

	s, err := r.ReadUTF()
	require.NoError(t, err)
	assert.Equal(t, "java.lang.Thread", s)

	n, err := r.ReadCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = r.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestReaderShortRead(t *testing.T) {
	r := NewDataReader(bytes.NewReader([]byte{0, 0, 1}))
	_, err := r.ReadI4()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, int64(3), r.BytesRead())
}

func TestReadCountRejectsNegative(t *testing.T) {
	var buf bytes.Buffer
	w := NewDataWriter(&buf)
	w.WriteI4(-1)

	_, err := NewDataReader(&buf).ReadCount()
	assert.Error(t, err)
}

func TestWriterStickyError(t *testing.T) {
	w := NewDataWriter(failingWriter{})
	w.WriteI4(1)
	w.WriteUTF("ignored")
	assert.ErrorIs(t, w.Err(), io.ErrShortWrite)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, io.ErrShortWrite
}
