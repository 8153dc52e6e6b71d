// Package simerr defines the typed failure kinds returned by simulation operations.
package simerr

import (
	"errors"
	"fmt"

	"driftmoor.ai/internal/protocol"
)

type Kind string

const (
	InvalidTarget         Kind = protocol.ErrInvalidTarget
	Busy                  Kind = protocol.ErrBusy
	InsufficientResources Kind = protocol.ErrNoResource
	NotFound              Kind = protocol.ErrNotFound
	Stale                 Kind = protocol.ErrStale
	Timeout               Kind = protocol.ErrTimeout
	CapacityExceeded      Kind = protocol.ErrCapacityExceeded
)

// Failure is a rejected operation. The world state is unchanged when one is returned.
type Failure struct {
	Kind Kind
	Msg  string
}

func (f *Failure) Error() string {
	if f.Msg == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Msg
}

func New(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the failure kind carried by err, or "" if err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }

// PlayerFacing reports whether a failure is surfaced to the originating session.
// Stale and Timeout are absorbed by the cognition layer.
func PlayerFacing(kind Kind) bool {
	switch kind {
	case Stale, Timeout:
		return false
	default:
		return true
	}
}
