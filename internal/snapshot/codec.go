package snapshot

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/mabhi256/jprof/internal/javaio"
	"github.com/mabhi256/jprof/internal/samples"
	"github.com/mabhi256/jprof/internal/settings"
)

/*
*	Snapshot file (.nps), big-endian
*
*	"nBpRoFiLeR"            10 ASCII bytes
*	u1 u1                   major, minor version
*	i4                      snapshot type
*	i4                      compressed payload length
*	i4                      uncompressed payload length
*	u1[]                    zlib payload
*	i4                      settings length
*	u1[]                    settings, .properties text
 */
const (
	Magic        = "nBpRoFiLeR"
	MajorVersion = byte(1)
	MinorVersion = byte(1)

	DefaultMaxSection = 512 << 20
)

// Codec reads and writes snapshot files. The zero value is ready to use.
type Codec struct {
	// MaxSection bounds every length declared in a file; 0 means DefaultMaxSection
	MaxSection int64
	Logger     *slog.Logger
}

var defaultCodec = &Codec{}

func Encode(w io.Writer, ls *LoadedSnapshot) error { return defaultCodec.Encode(w, ls) }
func Decode(r io.Reader) (*LoadedSnapshot, error) { return defaultCodec.Decode(r) }
func SaveFile(ls *LoadedSnapshot, path string) error { return defaultCodec.SaveFile(ls, path) }
func LoadFile(path string) (*LoadedSnapshot, error) { return defaultCodec.LoadFile(path) }

func (c *Codec) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Codec) maxSection() int64 {
	if c.MaxSection > 0 {
		return c.MaxSection
	}
	return DefaultMaxSection
}

func (c *Codec) checkLength(what string, n int32) error {
	if n < 0 {
		return corrupted(fmt.Errorf("%w: negative %s length %d", ErrDataCorrupted, what, n))
	}
	if int64(n) > c.maxSection() {
		return fmt.Errorf("%w: %s of %d bytes exceeds the %d byte limit", ErrOutOfMemory, what, n, c.maxSection())
	}
	return nil
}

// Header is the fixed part of a snapshot file
type Header struct {
	Major, Minor    byte
	Type            Type
	CompressedLen   int32
	UncompressedLen int32

	// Stream is set for raw sample streams, which carry no header fields
	Stream        bool
	StreamVersion byte
}

// Marshal renders the complete record in memory
func (c *Codec) Marshal(ls *LoadedSnapshot) ([]byte, error) {
	if ls == nil {
		return nil, errors.New("snapshot must not be nil")
	}
	t, err := typeOf(ls.results)
	if err != nil {
		return nil, err
	}

	var payload bytes.Buffer
	if err := ls.results.Encode(javaio.NewDataWriter(&payload)); err != nil {
		return nil, fmt.Errorf("failed to encode %s results: %w", t, err)
	}
	if int64(payload.Len()) > c.maxSection() {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds the %d byte limit", ErrOutOfMemory, payload.Len(), c.maxSection())
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(payload.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to compress results: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress results: %w", err)
	}

	props := settings.NewProperties()
	ls.settings.Store(props)
	if ls.userComments != "" {
		props.Set(commentsKey, ls.userComments)
	}
	settingsData, err := settings.EncodeProperties(props)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Grow(len(Magic) + 18 + compressed.Len() + len(settingsData))
	dw := javaio.NewDataWriter(&out)
	dw.Write([]byte(Magic))
	dw.WriteByte(MajorVersion)
	dw.WriteByte(MinorVersion)
	dw.WriteI4(int32(t))
	dw.WriteCount(compressed.Len())
	dw.WriteCount(payload.Len())
	dw.Write(compressed.Bytes())
	dw.WriteCount(len(settingsData))
	dw.Write(settingsData)
	if err := dw.Err(); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	c.logger().Debug("encoded snapshot",
		"type", t,
		"compressed", compressed.Len(),
		"uncompressed", payload.Len(),
		"settings", len(settingsData))
	return out.Bytes(), nil
}

// Encode writes ls to w. Nothing reaches w unless the whole record was built.
func (c *Codec) Encode(w io.Writer, ls *LoadedSnapshot) error {
	data, err := c.Marshal(ls)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// sniff tells a snapshot file from a raw sample stream without consuming input
func sniff(br *bufio.Reader) (stream bool, err error) {
	head, err := br.Peek(len(Magic))
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch {
	case string(head) == Magic:
		return false, nil
	case samples.IsStream(head):
		return true, nil
	default:
		return false, ErrInvalidFile
	}
}

func (c *Codec) readHeader(dr *javaio.DataReader) (Header, error) {
	var h Header
	if err := dr.Skip(len(Magic)); err != nil {
		return h, ErrInvalidFile
	}

	var err error
	if h.Major, err = dr.ReadByte(); err != nil {
		return h, corrupted(ErrFileTooShort)
	}
	if h.Minor, err = dr.ReadByte(); err != nil {
		return h, corrupted(ErrFileTooShort)
	}
	if h.Major > MajorVersion {
		return h, corrupted(fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, h.Major, h.Minor))
	}

	t, err := dr.ReadI4()
	if err != nil {
		return h, corrupted(ErrFileTooShort)
	}
	h.Type = Type(t)
	if _, err := newPayload(h.Type); err != nil {
		return h, err
	}

	if h.CompressedLen, err = dr.ReadI4(); err != nil {
		return h, corrupted(ErrFileTooShort)
	}
	if h.UncompressedLen, err = dr.ReadI4(); err != nil {
		return h, corrupted(ErrFileTooShort)
	}
	if err := c.checkLength("compressed data", h.CompressedLen); err != nil {
		return h, err
	}
	if err := c.checkLength("uncompressed data", h.UncompressedLen); err != nil {
		return h, err
	}

	c.logger().Debug("read snapshot header",
		"version", fmt.Sprintf("%d.%d", h.Major, h.Minor),
		"type", h.Type,
		"compressed", h.CompressedLen,
		"uncompressed", h.UncompressedLen)
	return h, nil
}

func (c *Codec) readSettingsBlock(dr *javaio.DataReader) ([]byte, error) {
	n, err := dr.ReadI4()
	if err != nil {
		return nil, corrupted(fmt.Errorf("%w: %w", ErrCannotReadSettings, err))
	}
	if err := c.checkLength("settings", n); err != nil {
		return nil, err
	}
	data, err := dr.ReadNBytes(int(n))
	if err != nil {
		return nil, corrupted(fmt.Errorf("%w: %w", ErrCannotReadSettings, err))
	}
	return data, nil
}

// Decode reads a snapshot file, or a raw sample stream replayed into a CPU
// snapshot
func (c *Codec) Decode(r io.Reader) (*LoadedSnapshot, error) {
	br := bufio.NewReader(r)
	stream, err := sniff(br)
	if err != nil {
		return nil, err
	}
	if stream {
		return c.decodeStream(br)
	}

	dr := javaio.NewDataReader(br)
	h, err := c.readHeader(dr)
	if err != nil {
		return nil, err
	}

	compressed, err := dr.ReadNBytes(int(h.CompressedLen))
	if err != nil {
		return nil, corrupted(fmt.Errorf("%w: %w", ErrCannotReadData, err))
	}
	settingsData, err := c.readSettingsBlock(dr)
	if err != nil {
		return nil, err
	}

	data, err := inflate(compressed, int(h.UncompressedLen))
	if err != nil {
		return nil, corrupted(fmt.Errorf("%w: %w", ErrDataCorrupted, err))
	}

	payload, _ := newPayload(h.Type)
	if err := payload.Decode(javaio.NewDataReader(bytes.NewReader(data))); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, corrupted(fmt.Errorf("%w: %w", ErrFileTooShort, err))
		}
		return nil, corrupted(err)
	}

	props, err := settings.DecodeProperties(settingsData)
	if err != nil {
		return nil, corrupted(fmt.Errorf("%w: %w", ErrCannotReadSettings, err))
	}
	comments := props.GetString(commentsKey, "")
	props.Delete(commentsKey)

	s := settings.New("")
	s.Load(props)
	c.logger().Debug("loaded snapshot settings", "settings", s.Debug())

	ls, err := New(payload, s, "", "")
	if err != nil {
		return nil, err
	}
	ls.userComments = comments
	return ls, nil
}

// inflate decompresses data and requires exactly size bytes of output
func inflate(data []byte, size int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("expected %d bytes: %w", size, err)
	}

	var extra [1]byte
	n, err := io.ReadFull(zr, extra[:])
	if n > 0 {
		return nil, fmt.Errorf("more than %d bytes", size)
	}
	if err != io.EOF {
		return nil, err
	}
	return out, nil
}

func (c *Codec) decodeStream(r io.Reader) (*LoadedSnapshot, error) {
	sr, err := samples.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	defer sr.Close()

	b := samples.NewBuilder()
	n, err := samples.Replay(sr, b)
	if err != nil {
		return nil, corrupted(fmt.Errorf("%w: sample %d: %w", ErrDataCorrupted, n+1, err))
	}
	// A recording without an origin is dated as if it ended now
	begin := sr.Origin()
	if begin.IsZero() {
		begin = time.Now().Add(-b.Span())
	}
	taken := begin.Add(b.Span())
	c.logger().Debug("replayed sample stream", "version", sr.Version(), "samples", n, "origin", begin)

	res, err := b.CreateSnapshotAt(begin, taken)
	if err != nil {
		return nil, corrupted(fmt.Errorf("%w: %w", ErrFileTooShort, err))
	}
	return New(res, settings.CPUPreset(), "", "")
}

// ReadHeader peeks at the fixed fields without inflating the payload
func (c *Codec) ReadHeader(r io.Reader) (Header, error) {
	br := bufio.NewReader(r)
	stream, err := sniff(br)
	if err != nil {
		return Header{}, err
	}
	if stream {
		head, err := br.Peek(len(samples.StreamID) + 1)
		if err != nil {
			return Header{}, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}
		return Header{Type: TypeCPU, Stream: true, StreamVersion: head[len(samples.StreamID)]}, nil
	}
	return c.readHeader(javaio.NewDataReader(br))
}

// ReadSettings returns the settings stored in a snapshot without decoding
// its results
func (c *Codec) ReadSettings(r io.Reader) (*settings.ProfilingSettings, error) {
	br := bufio.NewReader(r)
	stream, err := sniff(br)
	if err != nil {
		return nil, err
	}
	if stream {
		return settings.CPUPreset(), nil
	}

	dr := javaio.NewDataReader(br)
	h, err := c.readHeader(dr)
	if err != nil {
		return nil, err
	}
	if err := dr.Skip(int(h.CompressedLen)); err != nil {
		return nil, corrupted(fmt.Errorf("%w: %w", ErrCannotReadData, err))
	}
	data, err := c.readSettingsBlock(dr)
	if err != nil {
		return nil, err
	}
	props, err := settings.DecodeProperties(data)
	if err != nil {
		return nil, corrupted(fmt.Errorf("%w: %w", ErrCannotReadSettings, err))
	}
	props.Delete(commentsKey)

	s := settings.New("")
	s.Load(props)
	return s, nil
}

// LoadFile decodes the file at path. The snapshot remembers the absolute path
// and counts as saved.
func (c *Codec) LoadFile(path string) (*LoadedSnapshot, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	ls, err := c.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(abs), err)
	}
	ls.SetFile(abs)
	return ls, nil
}

// SaveFile writes ls to path through a temporary file in the same directory.
// On failure no partial file is left behind.
func (c *Codec) SaveFile(ls *LoadedSnapshot, path string) (err error) {
	data, err := c.Marshal(ls)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), "."+filepath.Base(abs)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err = os.Rename(tmp.Name(), abs); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	ls.SetFile(abs)
	c.logger().Debug("saved snapshot", "file", abs, "bytes", len(data))
	return nil
}
