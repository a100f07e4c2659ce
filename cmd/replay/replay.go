package main

import (
	"errors"
	"fmt"

	persistlog "santorini.ai/internal/persistence/log"
	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/game"
)

type Result struct {
	// Checked counts log entries whose digest was compared.
	Checked uint64
	// Stepped counts every tick advanced, quiet ones included.
	Stepped uint64
}

var errStop = errors.New("stop")

// Replay feeds the tick log under eventsDir into g and compares digests.
// The log only holds ticks where something happened, so quiet ticks in
// between are stepped with no input.
func Replay(g *game.Game, eventsDir string, fromTick, toTick uint64) (Result, error) {
	var res Result
	startTick := g.CurrentTick()
	verifyFrom := fromTick
	if verifyFrom < startTick {
		verifyFrom = startTick
	}

	entries := 0
	err := persistlog.ReadTicks(eventsDir, func(entry game.TickLogEntry) error {
		entries++
		if entry.Tick < startTick {
			return nil
		}
		if toTick != 0 && entry.Tick > toTick {
			return errStop
		}
		if entry.Tick < g.CurrentTick() {
			return fmt.Errorf("tick went backwards: entry=%d game=%d", entry.Tick, g.CurrentTick())
		}
		for g.CurrentTick() < entry.Tick {
			g.StepOnce(nil, nil, nil, nil)
			res.Stepped++
		}

		joins := make([]game.JoinRequest, 0, len(entry.Joins))
		for _, j := range entry.Joins {
			p, ok := board.ParsePlayer(j.Seat)
			if !ok {
				return fmt.Errorf("tick %d: join: bad seat %q", entry.Tick, j.Seat)
			}
			joins = append(joins, game.JoinRequest{Name: j.Name, Seat: p})
		}
		leaves := make([]game.LeaveRequest, 0, len(entry.Leaves))
		for _, s := range entry.Leaves {
			p, ok := board.ParsePlayer(s)
			if !ok {
				return fmt.Errorf("tick %d: leave: bad seat %q", entry.Tick, s)
			}
			leaves = append(leaves, game.LeaveRequest{Seat: p})
		}
		controls, err := game.ReplayControls(entry.Controls)
		if err != nil {
			return fmt.Errorf("tick %d: %w", entry.Tick, err)
		}
		clicks := make([]game.ClickEnvelope, 0, len(entry.Clicks))
		for _, rc := range entry.Clicks {
			env, err := game.ReplayClick(rc)
			if err != nil {
				return fmt.Errorf("tick %d: %w", entry.Tick, err)
			}
			clicks = append(clicks, env)
		}

		tick, gotDigest := g.StepOnce(joins, leaves, controls, clicks)
		res.Stepped++
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
		}
		if tick >= verifyFrom {
			res.Checked++
			if gotDigest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return res, err
	}
	if entries == 0 {
		return res, fmt.Errorf("no events found in %s", eventsDir)
	}
	return res, nil
}
