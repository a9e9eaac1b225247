package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Board mutations.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrOutOfBounds  = "E_OUT_OF_BOUNDS"
	ErrLocked       = "E_LOCKED"
	ErrOccupied     = "E_OCCUPIED"
	ErrImmutable    = "E_IMMUTABLE"
	ErrNotRotatable = "E_NOT_ROTATABLE"
	ErrEmptyTile    = "E_EMPTY_TILE"
	ErrNotLocked    = "E_NOT_LOCKED"
	ErrSameTile     = "E_SAME_TILE"
	ErrMaxLevel     = "E_MAX_LEVEL"

	// Economy.
	ErrNoFunds    = "E_NO_FUNDS"
	ErrWrongBoard = "E_WRONG_BOARD"
	ErrBadSlot    = "E_BAD_SLOT"

	// Session state.
	ErrPaused   = "E_PAUSED"
	ErrBusy     = "E_BUSY"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrOutOfBounds:     {},
	ErrLocked:          {},
	ErrOccupied:        {},
	ErrImmutable:       {},
	ErrNotRotatable:    {},
	ErrEmptyTile:       {},
	ErrNotLocked:       {},
	ErrSameTile:        {},
	ErrMaxLevel:        {},
	ErrNoFunds:         {},
	ErrWrongBoard:      {},
	ErrBadSlot:         {},
	ErrPaused:          {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
