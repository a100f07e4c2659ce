package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"santorini.ai/internal/sim/controller"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	// ClickDedupeTTLTicks bounds how long a click_id is remembered per seat.
	ClickDedupeTTLTicks int `yaml:"click_dedupe_ttl_ticks" json:"click_dedupe_ttl_ticks"`

	// MaxQueue caps the per-client outbound frame buffer.
	MaxQueue int `yaml:"max_queue" json:"max_queue"`

	Controllers Controllers `yaml:"controllers" json:"controllers"`
}

// Controllers picks who drives each seat.
type Controllers struct {
	P1 string `yaml:"p1" json:"p1"`
	P2 string `yaml:"p2" json:"p2"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		TickRateHz:          20,
		SnapshotEveryTicks:  1200,
		ClickDedupeTTLTicks: 600,
		MaxQueue:            16,
		Controllers:         Controllers{P1: string(controller.Human), P2: string(controller.Human)},
	}
}

// Load reads a tuning file on top of Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.ClickDedupeTTLTicks <= 0 {
		return fmt.Errorf("click_dedupe_ttl_ticks must be > 0")
	}
	if t.MaxQueue <= 0 || t.MaxQueue > 256 {
		return fmt.Errorf("max_queue out of range: %d", t.MaxQueue)
	}
	if _, err := controller.ParseKind(t.Controllers.P1); err != nil {
		return fmt.Errorf("controllers.p1: %w", err)
	}
	if _, err := controller.ParseKind(t.Controllers.P2); err != nil {
		return fmt.Errorf("controllers.p2: %w", err)
	}
	return nil
}
