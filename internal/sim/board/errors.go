package board

import "errors"

// Rule violations. The interaction layer never offers a target that would
// produce one of these, so seeing one outside tests means a controller bug.
var (
	ErrCellOccupied     = errors.New("cell occupied")
	ErrNoWorkerAtSource = errors.New("no worker of player at source")
	ErrInvalidHeight    = errors.New("invalid height")
	ErrIllegalMove      = errors.New("illegal move")
	ErrWorkerLimit      = errors.New("player already placed all workers")
	ErrNotPlayersTurn   = errors.New("not player's turn")
	ErrGameOver         = errors.New("game is over")
	ErrInvalidState     = errors.New("invalid board state")
)
