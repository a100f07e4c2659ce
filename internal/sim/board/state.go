package board

import "fmt"

// State is the plain-data form of a board, used by snapshots.
type State struct {
	Turn    Player
	Outcome Outcome
	Pieces  []Placed
}

func (b *Board) Export() State {
	return State{Turn: b.turn, Outcome: b.outcome, Pieces: b.Pieces()}
}

// Restore builds a board from s, rejecting states no sequence of rule
// operations could have produced.
func Restore(s State) (*Board, error) {
	if !s.Turn.Valid() {
		return nil, fmt.Errorf("%w: turn %d", ErrInvalidState, s.Turn)
	}
	if s.Outcome > Player2Wins {
		return nil, fmt.Errorf("%w: outcome %d", ErrInvalidState, s.Outcome)
	}
	b := &Board{turn: s.Turn, outcome: s.Outcome}
	workers := map[Player]int{}
	for _, pl := range s.Pieces {
		pos := pl.Pos
		if !pos.Valid() {
			return nil, fmt.Errorf("%w: position %s", ErrInvalidState, pos)
		}
		if !b.cells[pos.Row][pos.Column][pos.Height].IsEmpty() {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidState, pos)
		}
		switch pl.Piece.Kind {
		case Ground:
			if pos.Height != 0 {
				return nil, fmt.Errorf("%w: ground at %s", ErrInvalidState, pos)
			}
		case Block:
			if pos.Height == 0 {
				return nil, fmt.Errorf("%w: block at ground level %s", ErrInvalidState, pos)
			}
		case Worker:
			if pos.Height == 0 || !pl.Piece.Player.Valid() {
				return nil, fmt.Errorf("%w: worker %s at %s", ErrInvalidState, pl.Piece, pos)
			}
			workers[pl.Piece.Player]++
		default:
			return nil, fmt.Errorf("%w: piece kind %d", ErrInvalidState, pl.Piece.Kind)
		}
		b.cells[pos.Row][pos.Column][pos.Height] = pl.Piece
	}
	for p, n := range workers {
		if n > WorkersPerPlayer {
			return nil, fmt.Errorf("%w: %s has %d workers", ErrInvalidState, p, n)
		}
	}

	// Every column must be a gap-free stack: ground, blocks, then at most one worker on top.
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			col := b.cells[r][c]
			if col[0].Kind != Ground {
				return nil, fmt.Errorf("%w: missing ground at (%d,%d)", ErrInvalidState, r, c)
			}
			ended := false
			for h := 1; h <= MaxHeight; h++ {
				p := col[h]
				if p.IsEmpty() {
					ended = true
					continue
				}
				if ended {
					return nil, fmt.Errorf("%w: gap beneath (%d,%d,%d)", ErrInvalidState, r, c, h)
				}
				if p.Kind == Worker && h < MaxHeight && !col[h+1].IsEmpty() {
					return nil, fmt.Errorf("%w: piece on top of worker at (%d,%d,%d)", ErrInvalidState, r, c, h)
				}
			}
		}
	}
	return b, nil
}
