package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Session routing/state.
	ErrSeatTaken   = "E_SEAT_TAKEN"
	ErrNotSeated   = "E_NOT_SEATED"
	ErrGameBusy    = "E_GAME_BUSY"
	ErrPaused      = "E_PAUSED"
	ErrGameOver    = "E_GAME_OVER"
	ErrNotYourTurn = "E_NOT_YOUR_TURN"
	ErrDuplicate   = "E_DUPLICATE"
	ErrLocked      = "E_LOCKED"
	ErrDropped     = "E_DROPPED"

	// Rule layer.
	ErrCellOccupied  = "E_CELL_OCCUPIED"
	ErrNoWorker      = "E_NO_WORKER"
	ErrInvalidHeight = "E_INVALID_HEIGHT"
	ErrIllegalMove   = "E_ILLEGAL_MOVE"
	ErrWorkerLimit   = "E_WORKER_LIMIT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrSeatTaken:       {},
	ErrNotSeated:       {},
	ErrGameBusy:        {},
	ErrPaused:          {},
	ErrGameOver:        {},
	ErrNotYourTurn:     {},
	ErrDuplicate:       {},
	ErrLocked:          {},
	ErrDropped:         {},
	ErrCellOccupied:    {},
	ErrNoWorker:        {},
	ErrInvalidHeight:   {},
	ErrIllegalMove:     {},
	ErrWorkerLimit:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
