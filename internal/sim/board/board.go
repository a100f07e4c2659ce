package board

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Board is the authoritative occupancy grid plus turn and outcome.
// It is not safe for concurrent use; the game loop owns it.
type Board struct {
	cells   [Size][Size][MaxHeight + 1]Piece
	turn    Player
	outcome Outcome
}

// Placed pairs a piece with the position it occupies.
type Placed struct {
	Piece Piece
	Pos   Pos
}

// New returns a board holding only the ground tiles, Player1 to move.
func New() *Board {
	b := &Board{turn: Player1}
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			b.cells[r][c][0] = Piece{Kind: Ground}
		}
	}
	return b
}

func (b *Board) Clone() *Board {
	cp := *b
	return &cp
}

func (b *Board) Turn() Player     { return b.turn }
func (b *Board) Outcome() Outcome { return b.outcome }

// Piece returns the piece at pos and whether the position is occupied.
func (b *Board) Piece(pos Pos) (Piece, bool) {
	if !pos.Valid() {
		return Piece{}, false
	}
	p := b.cells[pos.Row][pos.Column][pos.Height]
	return p, !p.IsEmpty()
}

// Pieces lists every occupied position in row, column, height order.
func (b *Board) Pieces() []Placed {
	out := make([]Placed, 0, Size*Size+8)
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			for h := 0; h <= MaxHeight; h++ {
				p := b.cells[r][c][h]
				if p.IsEmpty() {
					break
				}
				out = append(out, Placed{Piece: p, Pos: Pos{Row: r, Column: c, Height: h}})
			}
		}
	}
	return out
}

// Top returns the height of the topmost piece in a column. Ground makes it at least 0.
func (b *Board) Top(row, column int) int {
	col := &b.cells[row][column]
	for h := MaxHeight; h > 0; h-- {
		if !col[h].IsEmpty() {
			return h
		}
	}
	return 0
}

// TopPos returns the position of the topmost piece in a column.
func (b *Board) TopPos(row, column int) Pos {
	return Pos{Row: row, Column: column, Height: b.Top(row, column)}
}

func (b *Board) Workers(p Player) []Pos {
	var out []Pos
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			h := b.Top(r, c)
			if pc := b.cells[r][c][h]; pc.Kind == Worker && pc.Player == p {
				out = append(out, Pos{Row: r, Column: c, Height: h})
			}
		}
	}
	return out
}

func (b *Board) WorkerCount() int {
	return len(b.Workers(Player1)) + len(b.Workers(Player2))
}

// supported reports whether pos rests directly on ground or a block.
func (b *Board) supported(pos Pos) bool {
	if pos.Height < 1 || pos.Height > MaxHeight {
		return false
	}
	below := b.cells[pos.Row][pos.Column][pos.Height-1]
	return below.Kind == Ground || below.Kind == Block
}

func (b *Board) checkLevel(pos Pos) error {
	if !pos.Valid() || pos.Height < 1 {
		return fmt.Errorf("%w: %s", ErrInvalidHeight, pos)
	}
	if _, occupied := b.Piece(pos); occupied {
		return fmt.Errorf("%w: %s", ErrCellOccupied, pos)
	}
	if !b.supported(pos) {
		return fmt.Errorf("%w: %s has nothing beneath it", ErrInvalidHeight, pos)
	}
	return nil
}

func (b *Board) checkActor(p Player) error {
	if b.outcome.Terminal() {
		return ErrGameOver
	}
	if !p.Valid() || p != b.turn {
		return fmt.Errorf("%w: %s to move, got %s", ErrNotPlayersTurn, b.turn, p)
	}
	return nil
}

// PlaceWorker puts a new worker for player at pos. pos must be the level
// directly above the column's current top.
func (b *Board) PlaceWorker(pos Pos, player Player) error {
	if err := b.checkActor(player); err != nil {
		return err
	}
	if err := b.checkLevel(pos); err != nil {
		return err
	}
	if len(b.Workers(player)) >= WorkersPerPlayer {
		return fmt.Errorf("%w: %s", ErrWorkerLimit, player)
	}
	b.cells[pos.Row][pos.Column][pos.Height] = WorkerOf(player)
	b.commit()
	return nil
}

// MoveWorker moves player's worker from one position to an adjacent level
// at most one higher than where it stands.
func (b *Board) MoveWorker(from, to Pos, player Player) error {
	if err := b.checkActor(player); err != nil {
		return err
	}
	if pc, _ := b.Piece(from); pc.Kind != Worker || pc.Player != player {
		return fmt.Errorf("%w: %s", ErrNoWorkerAtSource, from)
	}
	if err := b.checkLevel(to); err != nil {
		return err
	}
	if !from.Adjacent(to) {
		return fmt.Errorf("%w: %s is not next to %s", ErrIllegalMove, to, from)
	}
	if to.Height-from.Height > 1 {
		return fmt.Errorf("%w: climb from %s to %s", ErrIllegalMove, from, to)
	}
	b.cells[from.Row][from.Column][from.Height] = Piece{}
	b.cells[to.Row][to.Column][to.Height] = WorkerOf(player)
	b.commit()
	return nil
}

// Build places a block at pos, which must sit directly on the column top.
func (b *Board) Build(pos Pos) error {
	if b.outcome.Terminal() {
		return ErrGameOver
	}
	if err := b.checkLevel(pos); err != nil {
		return err
	}
	b.cells[pos.Row][pos.Column][pos.Height] = Piece{Kind: Block}
	b.commit()
	return nil
}

// NextTurn hands the move to the other player. It does nothing once the game is decided.
func (b *Board) NextTurn() {
	if b.outcome.Terminal() {
		return
	}
	b.turn = b.turn.Other()
}

func (b *Board) commit() {
	b.outcome = b.Evaluate()
}

// Reachable lists the column tops around the worker at pos that it could step
// onto by height alone. Occupancy is ignored.
func (b *Board) Reachable(pos Pos) []Pos {
	var out []Pos
	for _, n := range Neighbors(pos.Row, pos.Column) {
		top := b.Top(n.Row, n.Column)
		if top <= pos.Height {
			out = append(out, Pos{Row: n.Row, Column: n.Column, Height: top})
		}
	}
	return out
}

// MoveTargets lists the column tops the worker at pos can legally move onto.
// The worker ends up one level above the returned position.
func (b *Board) MoveTargets(pos Pos) []Pos {
	var out []Pos
	for _, t := range b.Reachable(pos) {
		if t.Height >= MaxHeight {
			continue
		}
		if b.cells[t.Row][t.Column][t.Height].Kind == Worker {
			continue
		}
		out = append(out, t)
	}
	return out
}

// BuildTargets lists the column tops around pos that can take another block.
func (b *Board) BuildTargets(pos Pos) []Pos {
	var out []Pos
	for _, n := range Neighbors(pos.Row, pos.Column) {
		top := b.Top(n.Row, n.Column)
		if top >= MaxHeight {
			continue
		}
		if b.cells[n.Row][n.Column][top].Kind == Worker {
			continue
		}
		out = append(out, Pos{Row: n.Row, Column: n.Column, Height: top})
	}
	return out
}

// Smothered reports whether the worker at pos has no reachable neighbor.
func (b *Board) Smothered(pos Pos) bool {
	return len(b.Reachable(pos)) == 0
}

// Evaluate computes the outcome of the current position. A worker standing at
// MaxHeight wins before any smother check. A player whose workers are all
// smothered loses; if both are, the player to move loses.
func (b *Board) Evaluate() Outcome {
	if b.outcome.Terminal() {
		return b.outcome
	}
	for _, pl := range b.Pieces() {
		if pl.Piece.Kind == Worker && pl.Pos.Height == MaxHeight {
			return Win(pl.Piece.Player)
		}
	}

	smothered := func(p Player) bool {
		ws := b.Workers(p)
		if len(ws) == 0 {
			return false
		}
		for _, w := range ws {
			if !b.Smothered(w) {
				return false
			}
		}
		return true
	}
	s1, s2 := smothered(Player1), smothered(Player2)
	switch {
	case s1 && s2:
		return Win(b.turn.Other())
	case s1:
		return Player2Wins
	case s2:
		return Player1Wins
	}
	return Ongoing
}

// Digest is a stable hash of pieces, turn and outcome.
func (b *Board) Digest() string {
	h := sha256.New()
	var buf [Size * Size * (MaxHeight + 1) * 2]byte
	i := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			for ht := 0; ht <= MaxHeight; ht++ {
				p := b.cells[r][c][ht]
				buf[i] = byte(p.Kind)
				buf[i+1] = byte(p.Player)
				i += 2
			}
		}
	}
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte{byte(b.turn), byte(b.outcome)})
	return hex.EncodeToString(h.Sum(nil))
}
