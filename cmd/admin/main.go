package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	persistlog "santorini.ai/internal/persistence/log"
	"santorini.ai/internal/persistence/snapshot"
	"santorini.ai/internal/sim/game"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot", "pause", "resume", "restart":
			controlCmd(os.Args[1], os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "games"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		line := e.Name()
		if _, tick, err := snapshot.Latest(filepath.Join(*dataDir, "games", e.Name(), "snapshots")); err == nil {
			line += fmt.Sprintf("\tlatest_snapshot=%d", tick)
		}
		fmt.Println(line)
	}
}

// auditCmd prints audit entries in a tick range, oldest first.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	actor := fs.String("actor", "", "P1 or P2 (optional)")
	action := fs.String("action", "", "action filter, e.g. BUILD (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*gameID) == "" {
		fmt.Fprintln(os.Stderr, "missing -game")
		os.Exit(2)
	}
	recs, err := readAudit(filepath.Join(*dataDir, "games", *gameID), auditFilter{
		SinceTick: *sinceTick,
		ToTick:    *toTick,
		Actor:     strings.ToUpper(strings.TrimSpace(*actor)),
		Action:    strings.ToUpper(strings.TrimSpace(*action)),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		printJSON(r)
	}
}

type auditFilter struct {
	SinceTick uint64
	ToTick    uint64
	Actor     string
	Action    string
}

func (f auditFilter) match(e game.AuditEntry) bool {
	if e.Tick < f.SinceTick || (f.ToTick != 0 && e.Tick > f.ToTick) {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}

func readAudit(gameDir string, f auditFilter) ([]game.AuditEntry, error) {
	dir := filepath.Join(gameDir, "audit")
	files, err := persistlog.ListFiles(dir, "audit")
	if err != nil {
		return nil, err
	}
	out := make([]game.AuditEntry, 0, 256)
	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			var e game.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if f.match(e) {
				out = append(out, e)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// inspectCmd prints a snapshot summary and its board.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*gameID) == "" {
			fmt.Fprintln(os.Stderr, "missing -game or -snapshot")
			os.Exit(2)
		}
		p, _, err := snapshot.Latest(filepath.Join(*dataDir, "games", *gameID, "snapshots"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest snapshot:", err)
			os.Exit(2)
		}
		path = p
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	var size uint64
	if st, err := os.Stat(path); err == nil {
		size = uint64(st.Size())
	}
	fmt.Printf("snapshot v%d game=%s tick=%d size=%s turn=%s outcome=%s paused=%v\n",
		snap.Header.Version, snap.Header.GameID, snap.Header.Tick, humanize.Bytes(size), snap.Turn, snap.Outcome, snap.Paused)
	for _, s := range snap.Seats {
		fmt.Printf("seat %s name=%q\n", s.Player, s.Name)
	}
	for _, c := range snap.Controllers {
		fmt.Printf("controller %s kind=%s phase=%s selectable=%d\n", c.Player, c.Kind, c.Phase, len(c.Selectable))
	}
	fmt.Print(renderHeights(snap))
}

// renderHeights draws column heights; workers show as their seat.
func renderHeights(snap snapshot.SnapshotV1) string {
	const size = 5
	var top [size][size]int
	var worker [size][size]string
	for _, pc := range snap.Pieces {
		r, c := pc.Pos[0], pc.Pos[1]
		if r < 0 || r >= size || c < 0 || c >= size {
			continue
		}
		switch pc.Kind {
		case "BLOCK":
			if pc.Pos[2] > top[r][c] {
				top[r][c] = pc.Pos[2]
			}
		case "WORKER":
			worker[r][c] = pc.Player
		}
	}
	var b strings.Builder
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			w := worker[r][c]
			if w == "" {
				w = ".."
			}
			fmt.Fprintf(&b, " %d%s", top[r][c], w)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
