package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/sim/game"
	"santorini.ai/internal/sim/tuning"
)

func TestSQLiteIndex_WritesTicksAuditsSnapshots(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index.sqlite")

	idx, err := OpenSQLite(dbPath, "g1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("tuning: %v", err)
	}

	target := [3]int{2, 2, 0}
	_ = idx.WriteTick(game.TickLogEntry{
		Tick:   5,
		Clicks: []game.RecordedClick{{Seat: "P1", ClickID: "c1", Target: &target}, {Seat: "P1", ClickID: "c2"}},
		Digest: "d5",
	})
	_ = idx.WriteTick(game.TickLogEntry{Tick: 6, Controls: []string{"PAUSE"}, Digest: "d6"})
	to := [3]int{2, 2, 1}
	_ = idx.WriteAudit(game.AuditEntry{Tick: 5, GameID: "g1", Actor: "P1", Action: "PLACE_WORKER", To: &to, Turn: "P1", Result: "ONGOING"})
	_ = idx.WriteAudit(game.AuditEntry{Tick: 5, GameID: "g1", Actor: "P1", Action: "BUILD", To: &to, Turn: "P2", Result: "ONGOING"})
	idx.RecordSnapshot("/tmp/6.snap.zst", 321, snapshot.SnapshotV1{
		Header:  snapshot.Header{Version: 1, GameID: "g1", Tick: 6},
		Turn:    "P2",
		Outcome: "ONGOING",
		Pieces: []snapshot.PieceV1{
			{Kind: "GROUND", Pos: [3]int{2, 2, 0}},
			{Kind: "WORKER", Player: "P1", Pos: [3]int{2, 2, 1}},
			{Kind: "BLOCK", Pos: [3]int{1, 1, 1}},
		},
		Paused: true,
	})

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	count := func(q string, args ...any) int {
		t.Helper()
		var n int
		if err := db.QueryRow(q, args...).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count(`SELECT COUNT(*) FROM ticks WHERE game_id='g1'`); n != 2 {
		t.Fatalf("ticks=%d want=2", n)
	}
	if n := count(`SELECT COUNT(*) FROM clicks WHERE game_id='g1' AND tick=5`); n != 2 {
		t.Fatalf("clicks=%d want=2", n)
	}
	if n := count(`SELECT COUNT(*) FROM clicks WHERE click_id='c2' AND pos_row IS NULL`); n != 1 {
		t.Fatalf("miss click should have null target")
	}
	if n := count(`SELECT COUNT(*) FROM audits WHERE game_id='g1' AND action='BUILD' AND seq=1`); n != 1 {
		t.Fatalf("audit seq not assigned per tick")
	}
	if n := count(`SELECT COUNT(*) FROM snapshots WHERE tick=6 AND workers=1 AND blocks=1 AND paused=1 AND bytes=321`); n != 1 {
		t.Fatalf("snapshot row mismatch")
	}
	if n := count(`SELECT COUNT(*) FROM config WHERE name='tuning'`); n != 1 {
		t.Fatalf("tuning row missing")
	}
	if n := count(`SELECT COUNT(*) FROM games WHERE game_id='g1'`); n != 1 {
		t.Fatalf("game row missing")
	}
}

func TestSQLiteIndex_RecentAudits(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(dbPath, "g2")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := uint64(1); i <= 3; i++ {
		_ = idx.WriteAudit(game.AuditEntry{Tick: i, GameID: "g2", Actor: "P1", Action: "BUILD"})
	}
	_ = idx.Close()

	idx2, err := OpenSQLite(dbPath, "g2")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx2.Close()
	got, err := idx2.RecentAudits(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Tick != 3 || got[1].Tick != 2 {
		t.Fatalf("unexpected audits: %+v", got)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: game.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(game.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(game.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", 10, snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop stats mismatch: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
