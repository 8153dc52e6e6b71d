package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Rule/action layer.
	ErrInvalidTarget    = "E_INVALID_TARGET"
	ErrBusy             = "E_BUSY"
	ErrNoResource       = "E_NO_RESOURCE"
	ErrNotFound         = "E_NOT_FOUND"
	ErrStale            = "E_STALE"
	ErrTimeout          = "E_TIMEOUT"
	ErrCapacityExceeded = "E_CAPACITY"
	ErrInternal         = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrInvalidTarget:    {},
	ErrBusy:             {},
	ErrNoResource:       {},
	ErrNotFound:         {},
	ErrStale:            {},
	ErrTimeout:          {},
	ErrCapacityExceeded: {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
