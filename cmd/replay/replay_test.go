package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	persistlog "santorini.ai/internal/persistence/log"
	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/game"
	"santorini.ai/internal/sim/gametest"
)

func cell(r, c int) board.Cell { return board.Cell{Row: r, Column: c} }

func playLogged(t *testing.T, dir string) *gametest.Harness {
	t.Helper()
	g, err := game.New(gametest.DefaultConfig())
	require.NoError(t, err)
	tl := persistlog.NewTickLogger(dir)
	g.SetTickLogger(tl)

	h := gametest.NewHarnessWithGame(t, g)
	h.PlaceWorkers(cell(0, 0), cell(0, 1), cell(4, 4), cell(4, 3))
	h.Tick()
	h.Tick()
	require.Empty(t, h.Control(game.ControlPause).Err)
	h.Tick()
	require.Empty(t, h.Control(game.ControlResume).Err)
	require.True(t, h.Click(board.Player1, 0, 0).Accepted)
	require.True(t, h.Click(board.Player1, 1, 0).Accepted)
	h.Tick()
	require.True(t, h.Click(board.Player1, 2, 0).Accepted)
	// P2 has no worker at (0,0): the click is acknowledged but changes nothing.
	require.True(t, h.Click(board.Player2, 0, 0).Accepted)
	require.Equal(t, "P2", h.State(board.Player2).Turn)
	require.False(t, h.Click(board.Player1, 2, 0).Accepted)
	require.NoError(t, tl.Close())
	return h
}

func TestReplay_FromTickZero(t *testing.T) {
	dir := t.TempDir()
	h := playLogged(t, dir)

	g2, err := game.New(gametest.DefaultConfig())
	require.NoError(t, err)
	res, err := Replay(g2, filepath.Join(dir, "events"), 0, 0)
	require.NoError(t, err)
	require.Greater(t, res.Checked, uint64(5))
	require.Greater(t, res.Stepped, res.Checked)

	want := h.G.Metrics()
	got := g2.Metrics()
	require.Equal(t, want.Turn, got.Turn)
	require.Equal(t, want.Commits, got.Commits)
}

func TestReplay_FromSnapshot(t *testing.T) {
	dir := t.TempDir()
	tl := persistlog.NewTickLogger(dir)

	g, err := game.New(gametest.DefaultConfig())
	require.NoError(t, err)
	g.SetTickLogger(tl)
	h := gametest.NewHarnessWithGame(t, g)
	h.PlaceWorkers(cell(0, 0), cell(0, 1), cell(4, 4), cell(4, 3))

	snapTick := g.CurrentTick() - 1
	path := filepath.Join(t.TempDir(), snapshot.FileName(snapTick))
	require.NoError(t, snapshot.WriteSnapshot(path, g.ExportSnapshot(snapTick)))

	require.True(t, h.Click(board.Player1, 0, 1).Accepted)
	require.True(t, h.Click(board.Player1, 0, 2).Accepted)
	require.True(t, h.Click(board.Player1, 0, 3).Accepted)
	require.NoError(t, tl.Close())

	snap, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)
	g2, err := game.New(gametest.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, g2.ImportSnapshot(snap))

	res, err := Replay(g2, filepath.Join(dir, "events"), 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), res.Checked)
	require.Equal(t, "P2", g2.Metrics().Turn)
}

func TestReplay_DigestMismatch(t *testing.T) {
	dir := t.TempDir()
	tl := persistlog.NewTickLogger(dir)
	require.NoError(t, tl.WriteTick(game.TickLogEntry{
		Tick:   0,
		Joins:  []game.RecordedJoin{{Seat: "P1", Name: "ana"}},
		Digest: "bogus",
	}))
	require.NoError(t, tl.Close())

	g, err := game.New(gametest.DefaultConfig())
	require.NoError(t, err)
	_, err = Replay(g, filepath.Join(dir, "events"), 0, 0)
	require.ErrorContains(t, err, "digest mismatch at tick 0")
}

func TestReplay_ToTickStopsEarly(t *testing.T) {
	dir := t.TempDir()
	playLogged(t, dir)

	g2, err := game.New(gametest.DefaultConfig())
	require.NoError(t, err)
	res, err := Replay(g2, filepath.Join(dir, "events"), 0, 3)
	require.NoError(t, err)
	require.LessOrEqual(t, g2.CurrentTick(), uint64(4))
	require.NotZero(t, res.Checked)
}
