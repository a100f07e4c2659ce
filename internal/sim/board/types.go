package board

import "fmt"

const (
	Size      = 5
	MaxHeight = 4

	// WorkersPerPlayer is the number of workers each player places before movement starts.
	WorkersPerPlayer = 2
)

type Player uint8

const (
	NoPlayer Player = iota
	Player1
	Player2
)

func (p Player) Other() Player {
	switch p {
	case Player1:
		return Player2
	case Player2:
		return Player1
	default:
		return NoPlayer
	}
}

func (p Player) Valid() bool { return p == Player1 || p == Player2 }

func (p Player) String() string {
	switch p {
	case Player1:
		return "P1"
	case Player2:
		return "P2"
	default:
		return "NONE"
	}
}

// ParsePlayer accepts the wire names "P1" and "P2".
func ParsePlayer(s string) (Player, bool) {
	switch s {
	case "P1":
		return Player1, true
	case "P2":
		return Player2, true
	default:
		return NoPlayer, false
	}
}

type Outcome uint8

const (
	Ongoing Outcome = iota
	Player1Wins
	Player2Wins
)

// Win returns the outcome in which p has won.
func Win(p Player) Outcome {
	switch p {
	case Player1:
		return Player1Wins
	case Player2:
		return Player2Wins
	default:
		return Ongoing
	}
}

func (o Outcome) Winner() Player {
	switch o {
	case Player1Wins:
		return Player1
	case Player2Wins:
		return Player2
	default:
		return NoPlayer
	}
}

func (o Outcome) Terminal() bool { return o != Ongoing }

func (o Outcome) String() string {
	switch o {
	case Player1Wins:
		return "P1_WINS"
	case Player2Wins:
		return "P2_WINS"
	default:
		return "ONGOING"
	}
}

func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "ONGOING":
		return Ongoing, nil
	case "P1_WINS":
		return Player1Wins, nil
	case "P2_WINS":
		return Player2Wins, nil
	default:
		return Ongoing, fmt.Errorf("%w: outcome %q", ErrInvalidState, s)
	}
}

type Kind uint8

const (
	Empty Kind = iota
	Ground
	Block
	Worker
)

func (k Kind) String() string {
	switch k {
	case Ground:
		return "GROUND"
	case Block:
		return "BLOCK"
	case Worker:
		return "WORKER"
	default:
		return "EMPTY"
	}
}

// ParseKind accepts the names produced by Kind.String, except EMPTY.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "GROUND":
		return Ground, nil
	case "BLOCK":
		return Block, nil
	case "WORKER":
		return Worker, nil
	default:
		return Empty, fmt.Errorf("%w: piece kind %q", ErrInvalidState, s)
	}
}

// Piece is the content of one board position. The zero value is an empty cell.
// Player is set only for workers.
type Piece struct {
	Kind   Kind
	Player Player
}

func WorkerOf(p Player) Piece { return Piece{Kind: Worker, Player: p} }

func (p Piece) IsEmpty() bool  { return p.Kind == Empty }
func (p Piece) IsWorker() bool { return p.Kind == Worker }

func (p Piece) String() string {
	if p.Kind == Worker {
		return fmt.Sprintf("WORKER(%s)", p.Player)
	}
	return p.Kind.String()
}

// Pos is a (row, column, height) coordinate. Height 0 is the ground tile;
// heights 1..4 are levels above it.
type Pos struct {
	Row    int `json:"row"`
	Column int `json:"column"`
	Height int `json:"height"`
}

func P(row, column, height int) Pos { return Pos{Row: row, Column: column, Height: height} }

func (p Pos) Valid() bool {
	return p.Row >= 0 && p.Row < Size &&
		p.Column >= 0 && p.Column < Size &&
		p.Height >= 0 && p.Height <= MaxHeight
}

// Above returns the position one level up. It fails past MaxHeight.
func (p Pos) Above() (Pos, error) {
	if p.Height+1 > MaxHeight {
		return p, fmt.Errorf("%w: %s has nothing above it", ErrInvalidHeight, p)
	}
	return Pos{Row: p.Row, Column: p.Column, Height: p.Height + 1}, nil
}

// Adjacent reports whether q is one of the 8 grid neighbors of p (heights ignored).
func (p Pos) Adjacent(q Pos) bool {
	dr := abs(p.Row - q.Row)
	dc := abs(p.Column - q.Column)
	return dr <= 1 && dc <= 1 && (dr != 0 || dc != 0)
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.Row, p.Column, p.Height) }

// Array is the wire form [row, column, height].
func (p Pos) Array() [3]int { return [3]int{p.Row, p.Column, p.Height} }

func PosFromArray(a [3]int) Pos { return Pos{Row: a[0], Column: a[1], Height: a[2]} }

// Cell is a (row, column) pair without height.
type Cell struct {
	Row    int
	Column int
}

var neighborOffsets = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Neighbors returns the in-grid 8-neighborhood of (row, column) in row-major order.
func Neighbors(row, column int) []Cell {
	out := make([]Cell, 0, 8)
	for _, d := range neighborOffsets {
		r, c := row+d[0], column+d[1]
		if r < 0 || r >= Size || c < 0 || c >= Size {
			continue
		}
		out = append(out, Cell{Row: r, Column: c})
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
