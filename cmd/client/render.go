package main

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"santorini.ai/internal/protocol"
)

const boardSize = 5

type column struct {
	top    int
	worker string
}

// render draws the board as seen by one seat. Each cell shows the column
// height, the worker on top if any, and '*' when the top is selectable.
func render(st protocol.StateMsg) string {
	var cols [boardSize][boardSize]column
	for _, pc := range st.Pieces {
		c := &cols[pc.Pos[0]][pc.Pos[1]]
		switch pc.Kind {
		case "WORKER":
			c.worker = pc.Player
		case "BLOCK":
			if pc.Pos[2] > c.top {
				c.top = pc.Pos[2]
			}
		}
	}
	sel := map[[2]int]bool{}
	for _, p := range st.Selectable {
		sel[[2]int{p[0], p[1]}] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "tick=%d turn=%s phase=%s outcome=%s", st.Tick, st.Turn, st.Phase, st.Outcome)
	if st.Paused {
		b.WriteString(" PAUSED")
	}
	b.WriteString("\n     0     1     2     3     4\n")
	for r := 0; r < boardSize; r++ {
		fmt.Fprintf(&b, "%d ", r)
		for c := 0; c < boardSize; c++ {
			col := cols[r][c]
			w := "  "
			if col.worker != "" {
				w = col.worker
			}
			mark := " "
			if sel[[2]int{r, c}] {
				mark = "*"
			}
			if st.Raised != nil && st.Raised[0] == r && st.Raised[1] == c {
				mark = "^"
			}
			fmt.Fprintf(&b, " %d%s%s ", col.top, w, mark)
		}
		b.WriteByte('\n')
	}
	for _, e := range st.Events {
		if e.Action != "" {
			fmt.Fprintf(&b, "  %s %s\n", e.Player, e.Action)
		}
	}
	return b.String()
}

// parseInput turns "row col" into the top of that column in st, or "miss"
// into a click that hit nothing.
func parseInput(line string, st protocol.StateMsg) (*[3]int, error) {
	fields := strings.Fields(line)
	if len(fields) == 1 && strings.EqualFold(fields[0], "miss") {
		return nil, nil
	}
	if len(fields) != 2 {
		return nil, errors.New(`usage: "row col" or "miss"`)
	}
	row, err1 := strconv.Atoi(fields[0])
	col, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || row < 0 || row >= boardSize || col < 0 || col >= boardSize {
		return nil, fmt.Errorf("bad cell %q", line)
	}
	top := 0
	for _, pc := range st.Pieces {
		if pc.Pos[0] == row && pc.Pos[1] == col && pc.Pos[2] > top {
			top = pc.Pos[2]
		}
	}
	return &[3]int{row, col, top}, nil
}

func sameView(a, b protocol.StateMsg) bool {
	a.Tick, b.Tick = 0, 0
	return reflect.DeepEqual(a, b)
}
