package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	GameID  string `json:"game_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Operational parameters captured for deterministic replay/resume.
	TickRate            int `json:"tick_rate_hz"`
	SnapshotEveryTicks  int `json:"snapshot_every_ticks,omitempty"`
	ClickDedupeTTLTicks int `json:"click_dedupe_ttl_ticks,omitempty"`

	Turn    string    `json:"turn"`
	Outcome string    `json:"outcome"`
	Pieces  []PieceV1 `json:"pieces"`

	Controllers []ControllerV1 `json:"controllers"`
	Seats       []SeatV1       `json:"seats,omitempty"`

	Paused   bool       `json:"paused,omitempty"`
	Counters CountersV1 `json:"counters"`

	// Click ids still inside their dedupe window, so a retried click is
	// rejected across a restart as well.
	Dedupe []DedupeV1 `json:"dedupe,omitempty"`
}

type DedupeV1 struct {
	Seat    string `json:"seat"`
	ClickID string `json:"click_id"`
	Expires uint64 `json:"expires"`
}

type PieceV1 struct {
	Kind   string `json:"kind"`
	Player string `json:"player,omitempty"`
	Pos    [3]int `json:"pos"`
}

// ControllerV1 is the persisted interaction state of one seat.
type ControllerV1 struct {
	Player     string   `json:"player"`
	Kind       string   `json:"kind"`
	Phase      string   `json:"phase"`
	Selected   *[3]int  `json:"selected,omitempty"`
	Selectable [][3]int `json:"selectable,omitempty"`
	Raised     *[3]int  `json:"raised,omitempty"`
}

type SeatV1 struct {
	Player      string `json:"player"`
	Name        string `json:"name"`
	ResumeToken string `json:"resume_token"`
}

type CountersV1 struct {
	Clicks    uint64 `json:"clicks"`
	Commits   uint64 `json:"commits"`
	Restarts  uint64 `json:"restarts"`
	GamesDone uint64 `json:"games_done"`
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is repeated inside the gob body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// FileName is the canonical file name for a snapshot taken at tick.
func FileName(tick uint64) string {
	return strconv.FormatUint(tick, 10) + ".snap.zst"
}

// Latest returns the snapshot in dir with the highest tick.
func Latest(dir string) (path string, tick uint64, err error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}
	type cand struct {
		name string
		tick uint64
	}
	var cands []cand
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		t, perr := strconv.ParseUint(strings.TrimSuffix(e.Name(), ".snap.zst"), 10, 64)
		if perr != nil {
			continue
		}
		cands = append(cands, cand{name: e.Name(), tick: t})
	}
	if len(cands) == 0 {
		return "", 0, errors.New("no snapshots found")
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].tick > cands[j].tick })
	return filepath.Join(dir, cands[0].name), cands[0].tick, nil
}
