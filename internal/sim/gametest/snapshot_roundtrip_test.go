package gametest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/controller"
	"santorini.ai/internal/sim/game"
)

func TestSnapshotRoundTrip_ResumesMidTurn(t *testing.T) {
	h := NewHarness(t, DefaultConfig())
	h.PlaceWorkers(cell(0, 0), cell(0, 1), cell(4, 4), cell(4, 3))
	h.Click(board.Player1, 0, 0) // pick up
	before := h.State(board.Player1)
	require.Equal(t, string(controller.PhaseMovement2), before.Phase)

	tick := h.G.CurrentTick() - 1
	snap := h.G.ExportSnapshot(tick)
	path := filepath.Join(t.TempDir(), snapshot.FileName(tick))
	require.NoError(t, snapshot.WriteSnapshot(path, snap))
	loaded, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)

	g2, err := game.New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, g2.ImportSnapshot(loaded))
	require.Equal(t, tick+1, g2.CurrentTick())

	h2 := NewHarnessResumed(t, g2, map[board.Player]string{
		board.Player1: h.Token(board.Player1),
		board.Player2: h.Token(board.Player2),
	})
	after := h2.State(board.Player1)
	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, before.Raised, after.Raised)
	assert.ElementsMatch(t, before.Selectable, after.Selectable)
	assert.ElementsMatch(t, before.Pieces, after.Pieces)

	// Both games accept the same continuation and stay in lockstep.
	for _, hh := range []*Harness{h, h2} {
		require.True(t, hh.Click(board.Player1, 1, 1).Accepted)
		require.True(t, hh.Click(board.Player1, 2, 2).Accepted)
	}
	assert.ElementsMatch(t, h.State(board.Player2).Pieces, h2.State(board.Player2).Pieces)
	assert.Equal(t, "P2", h2.State(board.Player2).Turn)
}

func TestSnapshotRoundTrip_KeepsClickDedupe(t *testing.T) {
	h := NewHarness(t, DefaultConfig())
	env := h.Envelope(board.Player1, controller.ClickAt(board.P(0, 0, 0)))
	require.True(t, h.Tick(env)[0].Accepted)

	tick := h.G.CurrentTick() - 1
	snap := h.G.ExportSnapshot(tick)
	require.Len(t, snap.Dedupe, 1)
	assert.Equal(t, env.ClickID, snap.Dedupe[0].ClickID)

	path := filepath.Join(t.TempDir(), snapshot.FileName(tick))
	require.NoError(t, snapshot.WriteSnapshot(path, snap))
	loaded, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)

	g2, err := game.New(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, g2.ImportSnapshot(loaded))
	h2 := NewHarnessResumed(t, g2, map[board.Player]string{
		board.Player1: h.Token(board.Player1),
		board.Player2: h.Token(board.Player2),
	})

	// A client retrying across the restart is still recognized.
	retry := env
	retry.Resp = make(chan protocol.AckMsg, 1)
	ack := h2.Tick(retry)[0]
	assert.Equal(t, protocol.ErrDuplicate, ack.Code)
	assert.Equal(t, string(controller.PhasePlaceWorker2), h2.State(board.Player1).Phase)
}

func TestImportSnapshot_RejectsCorruptBoard(t *testing.T) {
	g, err := game.New(DefaultConfig())
	require.NoError(t, err)
	snap := g.ExportSnapshot(0)
	snap.Pieces = append(snap.Pieces, snapshot.PieceV1{Kind: "BLOCK", Pos: [3]int{0, 0, 3}})
	assert.Error(t, g.ImportSnapshot(snap))

	snap = g.ExportSnapshot(0)
	snap.Header.Version = 7
	assert.Error(t, g.ImportSnapshot(snap))
}

func TestDeterminism_SameClicksSameDigest(t *testing.T) {
	g1, err := game.New(DefaultConfig())
	require.NoError(t, err)
	g2, err := game.New(DefaultConfig())
	require.NoError(t, err)

	script := []struct {
		seat board.Player
		pos  board.Pos
	}{
		{board.Player1, board.P(1, 1, 0)},
		{board.Player1, board.P(3, 3, 0)},
		{board.Player2, board.P(1, 3, 0)},
		{board.Player2, board.P(3, 1, 0)},
		{board.Player1, board.P(1, 1, 1)},
		{board.Player1, board.P(2, 2, 0)},
		{board.Player1, board.P(2, 1, 0)},
		{board.Player2, board.P(1, 3, 1)},
		{board.Player2, board.P(0, 3, 0)},
		{board.Player2, board.P(0, 4, 0)},
	}
	for i, s := range script {
		c1 := []game.ClickEnvelope{{Seat: s.seat, Click: controller.ClickAt(s.pos)}}
		c2 := []game.ClickEnvelope{{Seat: s.seat, Click: controller.ClickAt(s.pos)}}
		t1, d1 := g1.StepOnce(nil, nil, nil, c1)
		t2, d2 := g2.StepOnce(nil, nil, nil, c2)
		require.Equal(t, t1, t2)
		require.Equalf(t, d1, d2, "digest mismatch at step %d", i)
	}
	m := g1.Metrics()
	assert.Equal(t, uint64(10), m.Clicks)
	assert.Equal(t, uint64(8), m.Commits)
	assert.Equal(t, "P1", m.Turn)
}
