package snapshot

import (
	"fmt"

	"github.com/mabhi256/jprof/internal/results"
)

type Type int32

const (
	TypeUnknown           Type = 0
	TypeCPU               Type = 1
	TypeCodeFragment      Type = 2
	TypeMemoryAllocations Type = 4
	TypeMemoryLiveness    Type = 8
	TypeMemory            Type = TypeMemoryAllocations | TypeMemoryLiveness

	// written by broken encoders, never a valid payload
	typeWrong Type = -1
)

func (t Type) String() string {
	switch t {
	case TypeCPU:
		return "CPU"
	case TypeCodeFragment:
		return "Code Fragment"
	case TypeMemoryAllocations:
		return "Memory Allocations"
	case TypeMemoryLiveness:
		return "Memory Liveness"
	case TypeMemory:
		return "Memory"
	case TypeUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Type(%d)", int32(t))
	}
}

func (t Type) IsMemory() bool {
	return t&TypeMemory != 0
}

// typeOf maps a payload to its tag
func typeOf(res results.Snapshot) (Type, error) {
	switch res.(type) {
	case *results.CPUResults:
		return TypeCPU, nil
	case *results.CodeRegionResults:
		return TypeCodeFragment, nil
	case *results.AllocResults:
		return TypeMemoryAllocations, nil
	case *results.LivenessResults:
		return TypeMemoryLiveness, nil
	default:
		return TypeUnknown, fmt.Errorf("unsupported results payload %T", res)
	}
}

// newPayload returns an empty payload for a decoded tag
func newPayload(t Type) (results.Snapshot, error) {
	switch t {
	case TypeCPU:
		return &results.CPUResults{}, nil
	case TypeCodeFragment:
		return &results.CodeRegionResults{}, nil
	case TypeMemoryAllocations:
		return &results.AllocResults{}, nil
	case TypeMemoryLiveness:
		return &results.LivenessResults{}, nil
	case typeWrong:
		return nil, corrupted(ErrWrongType)
	default:
		return nil, corrupted(fmt.Errorf("%w: %d", ErrUnrecognizedType, int32(t)))
	}
}
