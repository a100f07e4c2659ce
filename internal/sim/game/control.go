package game

import (
	"context"
	"errors"
	"fmt"

	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/board"
)

type ControlOp string

const (
	ControlPause    ControlOp = "PAUSE"
	ControlResume   ControlOp = "RESUME"
	ControlRestart  ControlOp = "RESTART"
	ControlSnapshot ControlOp = "SNAPSHOT"
)

func ParseControlOp(s string) (ControlOp, error) {
	switch op := ControlOp(s); op {
	case ControlPause, ControlResume, ControlRestart, ControlSnapshot:
		return op, nil
	default:
		return "", fmt.Errorf("unknown control op %q", s)
	}
}

type ControlRequest struct {
	Op   ControlOp
	Resp chan ControlResponse
}

type ControlResponse struct {
	Tick uint64
	Err  string
}

// RequestControl asks the game loop goroutine to apply op at the next tick.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (g *Game) RequestControl(ctx context.Context, op ControlOp) (tick uint64, err error) {
	if g == nil || g.control == nil {
		return 0, errors.New("control not available")
	}
	resp := make(chan ControlResponse, 1)
	select {
	case g.control <- ControlRequest{Op: op, Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// applyControls runs state-changing controls and returns their log names.
// Snapshot requests are answered after the tick completes.
func (g *Game) applyControls(nowTick uint64, reqs []ControlRequest) ([]string, []ControlRequest) {
	var recorded []string
	var snaps []ControlRequest
	for _, req := range reqs {
		var errStr string
		switch req.Op {
		case ControlSnapshot:
			snaps = append(snaps, req)
			continue
		case ControlPause:
			if g.paused {
				errStr = "already paused"
				break
			}
			g.paused = true
			g.emit(nowTick, protocol.Event{Action: string(req.Op)})
		case ControlResume:
			if !g.paused {
				errStr = "not paused"
				break
			}
			g.paused = false
			g.emit(nowTick, protocol.Event{Action: string(req.Op)})
		case ControlRestart:
			g.restart()
			g.emit(nowTick, protocol.Event{Action: string(req.Op)})
		default:
			errStr = fmt.Sprintf("unknown control op %q", req.Op)
		}
		if errStr == "" {
			recorded = append(recorded, string(req.Op))
			g.dirtySinceSnapshot = true
			g.logger.Printf("tick=%d control %s", nowTick, req.Op)
		}
		respond(req, ControlResponse{Tick: nowTick, Err: errStr})
	}
	return recorded, snaps
}

// restart throws the board away and starts a fresh match with the same seats.
func (g *Game) restart() {
	g.board = board.New()
	g.lock.Release()
	g.resetMachines()
	g.paused = false
	g.counters.Restarts++
}

func (g *Game) answerSnapshotRequests(nowTick uint64, reqs []ControlRequest) {
	if len(reqs) == 0 {
		return
	}
	errStr := ""
	if g.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else if !g.offerSnapshot(nowTick) {
		errStr = "snapshot sink backpressure"
	}
	for _, r := range reqs {
		respond(r, ControlResponse{Tick: nowTick, Err: errStr})
	}
}

func respond(req ControlRequest, resp ControlResponse) {
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- resp:
	default:
		// Caller timed out; don't block the game loop.
	}
}

// ReplayControls rebuilds control requests from logged names.
func ReplayControls(names []string) ([]ControlRequest, error) {
	out := make([]ControlRequest, 0, len(names))
	for _, n := range names {
		op, err := ParseControlOp(n)
		if err != nil {
			return nil, err
		}
		out = append(out, ControlRequest{Op: op})
	}
	return out, nil
}
