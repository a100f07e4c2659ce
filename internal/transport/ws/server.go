package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"santorini.ai/internal/protocol"
	"santorini.ai/internal/sim/board"
	"santorini.ai/internal/sim/game"
)

type Server struct {
	game      *game.Game
	log       *log.Logger
	validator *protocol.Validator
	maxQueue  int

	// A seat waiting for the opponent sends nothing, so liveness comes from
	// pong replies: every pong pushes the read deadline out by readTimeout.
	readTimeout  time.Duration
	pingInterval time.Duration

	upgrader websocket.Upgrader
}

func NewServer(g *game.Game, v *protocol.Validator, maxQueue int, logger *log.Logger) *Server {
	if maxQueue <= 0 {
		maxQueue = 8
	}
	s := &Server{
		game:      g,
		log:       logger,
		validator: v,
		maxQueue:  maxQueue,

		readTimeout:  60 * time.Second,
		pingInterval: 20 * time.Second,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// SetKeepalive overrides the read deadline and ping cadence.
// pingInterval must be shorter than readTimeout.
func (s *Server) SetKeepalive(readTimeout, pingInterval time.Duration) {
	if readTimeout > 0 {
		s.readTimeout = readTimeout
	}
	if pingInterval > 0 {
		s.pingInterval = pingInterval
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		seat, out := s.handshake(conn)
		if seat == board.NoPlayer {
			return
		}
		s.log.Printf("seat %s connected from %s", seat, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		acks := make(chan protocol.AckMsg, s.maxQueue)

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		})

		// Writer goroutine.
		go func() {
			ping := time.NewTicker(s.pingInterval)
			defer ping.Stop()
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						cancel()
						return
					}
					continue
				case st, ok := <-out:
					if !ok {
						return
					}
					b = st
				case ack := <-acks:
					b, _ = json.Marshal(ack)
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeClick {
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				reject(acks, "", protocol.ErrProtoBadRequest, "bad protocol_version")
				continue
			}
			if err := s.validate(protocol.TypeClick, msg); err != nil {
				reject(acks, "", protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			var cm protocol.ClickMsg
			if err := json.Unmarshal(msg, &cm); err != nil {
				reject(acks, "", protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			click, err := game.ClickFromTarget(cm.Target)
			if err != nil {
				reject(acks, cm.ClickID, protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			select {
			case s.game.Inbox() <- game.ClickEnvelope{Seat: seat, ClickID: cm.ClickID, Click: click, Resp: acks}:
			case <-ctx.Done():
			default:
				reject(acks, cm.ClickID, protocol.ErrGameBusy, "inbox full")
			}
		}

		// Cleanup.
		s.game.Leave() <- game.LeaveRequest{Seat: seat, Out: out}
		s.log.Printf("seat %s disconnected", seat)
	}
}

func (s *Server) validate(msgType string, raw []byte) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.Validate(msgType, raw)
}

func (s *Server) handshake(conn *websocket.Conn) (board.Player, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return board.NoPlayer, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return board.NoPlayer, nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return board.NoPlayer, nil
	}
	if err := s.validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, "invalid HELLO")
		return board.NoPlayer, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return board.NoPlayer, nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 || maxQ > s.maxQueue {
		maxQ = s.maxQueue
	}
	out := make(chan []byte, maxQ)

	seat, _ := board.ParsePlayer(hello.Seat)
	req := game.JoinRequest{
		Name: hello.PlayerName,
		Seat: seat,
		Out:  out,
		Resp: make(chan game.JoinResponse, 1),
	}
	if hello.Auth != nil {
		req.ResumeToken = strings.TrimSpace(hello.Auth.Token)
	}
	s.game.Join() <- req
	resp := <-req.Resp

	if resp.Code != "" {
		_ = writeJSON(conn, protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          protocol.TypeHello,
			Code:            resp.Code,
			Message:         resp.Message,
		})
		closeWith(conn, resp.Message)
		return board.NoPlayer, nil
	}

	// Send welcome immediately; STATE frames follow from the game loop.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		return board.NoPlayer, nil
	}
	p, _ := board.ParsePlayer(resp.Welcome.Seat)
	return p, out
}

func reject(acks chan protocol.AckMsg, clickID, code, msg string) {
	select {
	case acks <- protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          clickID,
		Code:            code,
		Message:         msg,
	}:
	default:
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
