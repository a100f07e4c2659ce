package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/sim/game"
	"santorini.ai/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; replays from tick 0 when empty)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning used for a replay from tick 0")
		gameID     = flag.String("game", "", "game id for a replay from tick 0")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" && *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "need -snapshot and/or -events")
		os.Exit(2)
	}

	var g *game.Game
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		size := int64(0)
		if st, err := os.Stat(*snapPath); err == nil {
			size = st.Size()
		}
		fmt.Printf("snapshot v%d game=%s tick=%s size=%s turn=%s outcome=%s pieces=%d paused=%v clicks=%s commits=%s\n",
			snap.Header.Version, snap.Header.GameID, humanize.Comma(int64(snap.Header.Tick)), humanize.Bytes(uint64(size)),
			snap.Turn, snap.Outcome, len(snap.Pieces), snap.Paused,
			humanize.Comma(int64(snap.Counters.Clicks)), humanize.Comma(int64(snap.Counters.Commits)))

		if *eventsDir == "" {
			return
		}
		g, err = game.New(game.Config{
			ID:                  snap.Header.GameID,
			TickRateHz:          snap.TickRate,
			SnapshotEveryTicks:  snap.SnapshotEveryTicks,
			ClickDedupeTTLTicks: snap.ClickDedupeTTLTicks,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "game:", err)
			os.Exit(1)
		}
		if err := g.ImportSnapshot(snap); err != nil {
			fmt.Fprintln(os.Stderr, "import snapshot:", err)
			os.Exit(1)
		}
	} else {
		tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
		if err != nil {
			if !os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "load tuning:", err)
				os.Exit(1)
			}
			tune = tuning.Defaults()
		}
		cfg, err := game.ConfigFromTuning(*gameID, tune)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
		g, err = game.New(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "game:", err)
			os.Exit(1)
		}
	}

	startTick := g.CurrentTick()
	res, err := Replay(g, *eventsDir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%s entries, stepped=%s ticks (from tick=%d to tick=%d)\n",
		humanize.Comma(int64(res.Checked)), humanize.Comma(int64(res.Stepped)), startTick, g.CurrentTick())
}
