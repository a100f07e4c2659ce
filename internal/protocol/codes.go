package protocol

import (
	"errors"

	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/controller"
)

// CodeForError maps rule and controller errors to wire codes.
func CodeForError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, board.ErrCellOccupied):
		return ErrCellOccupied
	case errors.Is(err, board.ErrNoWorkerAtSource):
		return ErrNoWorker
	case errors.Is(err, board.ErrInvalidHeight):
		return ErrInvalidHeight
	case errors.Is(err, board.ErrIllegalMove):
		return ErrIllegalMove
	case errors.Is(err, board.ErrWorkerLimit):
		return ErrWorkerLimit
	case errors.Is(err, board.ErrNotPlayersTurn):
		return ErrNotYourTurn
	case errors.Is(err, board.ErrGameOver):
		return ErrGameOver
	case errors.Is(err, controller.ErrTurnLocked):
		return ErrLocked
	default:
		return ErrInternal
	}
}
