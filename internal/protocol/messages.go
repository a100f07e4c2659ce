package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	PlayerName      string            `json:"player_name"`
	Seat            string            `json:"seat,omitempty"` // "P1", "P2" or empty for any free seat
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	GameID          string     `json:"game_id"`
	Seat            string     `json:"seat"`
	ResumeToken     string     `json:"resume_token"`
	Params          GameParams `json:"params"`
}

type GameParams struct {
	TickRateHz int `json:"tick_rate_hz"`
	BoardSize  int `json:"board_size"`
	MaxHeight  int `json:"max_height"`
}

// CLICK (client -> server). A null target is a press that hit nothing.
type ClickMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ClickID         string  `json:"click_id"`
	Target          *[3]int `json:"target"`
}

// ACK (server -> client) answers one CLICK.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// STATE (server -> client): a read-only snapshot of the board for one seat.
type StateMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	GameID          string      `json:"game_id"`
	Seat            string      `json:"seat,omitempty"`
	Turn            string      `json:"turn"`
	Outcome         string      `json:"outcome"`
	Phase           string      `json:"phase,omitempty"`
	Paused          bool        `json:"paused,omitempty"`
	Pieces          []PieceView `json:"pieces"`
	Selectable      [][3]int    `json:"selectable"`
	Raised          *[3]int     `json:"raised,omitempty"`
	Events          []Event     `json:"events,omitempty"`
}

type PieceView struct {
	Kind   string `json:"kind"`
	Player string `json:"player,omitempty"`
	Pos    [3]int `json:"pos"`
}

// Event reports something that happened during a tick.
type Event struct {
	Tick    uint64  `json:"tick"`
	Code    string  `json:"code,omitempty"`
	Player  string  `json:"player,omitempty"`
	Action  string  `json:"action,omitempty"`
	From    *[3]int `json:"from,omitempty"`
	To      *[3]int `json:"to,omitempty"`
	Message string  `json:"message,omitempty"`
}
