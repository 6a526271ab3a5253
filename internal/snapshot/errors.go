package snapshot

import "errors"

var (
	ErrInvalidFile = errors.New("not a profiler snapshot file")
	ErrCorrupted   = errors.New("snapshot file is corrupted")
	ErrOutOfMemory = errors.New("not enough memory to load snapshot")
)

// Reasons carried by a CorruptedError
var (
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrWrongType          = errors.New("wrong snapshot type")
	ErrUnrecognizedType   = errors.New("unrecognized snapshot type")
	ErrCannotReadData     = errors.New("cannot read snapshot data")
	ErrCannotReadSettings = errors.New("cannot read snapshot settings")
	ErrDataCorrupted      = errors.New("snapshot data is corrupted")
	ErrFileTooShort       = errors.New("snapshot file is too short")
)

// CorruptedError reports a snapshot that was recognized but could not be read
type CorruptedError struct {
	Err error
}

func (e *CorruptedError) Error() string {
	return ErrCorrupted.Error() + ": " + e.Err.Error()
}

func (e *CorruptedError) Is(target error) bool {
	return target == ErrCorrupted
}

func (e *CorruptedError) Unwrap() error {
	return e.Err
}

func corrupted(reason error) error {
	return &CorruptedError{Err: reason}
}
