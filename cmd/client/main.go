package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"santorini.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "player", "player name")
		seat  = flag.String("seat", "", "P1, P2 or empty for any free seat")
		token = flag.String("token", "", "resume token from an earlier WELCOME")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[client] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		Seat:            *seat,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if *token != "" {
		hello.Auth = &protocol.HelloAuth{Token: *token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	var (
		mu   sync.Mutex
		last protocol.StateMsg
		wmu  sync.Mutex
	)

	// Input loop: "row col" clicks the top of that column, "miss" clicks nothing.
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			mu.Lock()
			st := last
			mu.Unlock()
			target, err := parseInput(sc.Text(), st)
			if err != nil {
				fmt.Println(err)
				continue
			}
			msg := protocol.ClickMsg{
				Type:            protocol.TypeClick,
				ProtocolVersion: protocol.Version,
				ClickID:         uuid.NewString(),
				Target:          target,
			}
			wmu.Lock()
			err = conn.WriteJSON(msg)
			wmu.Unlock()
			if err != nil {
				logger.Printf("send CLICK: %v", err)
				return
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	var lastTick uint64
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME game=%s seat=%s tick_rate=%d resume_token=%s", w.GameID, w.Seat, w.Params.TickRateHz, w.ResumeToken)

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if !a.Accepted {
				fmt.Printf("rejected: %s %s\n", a.Code, a.Message)
			}

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			mu.Lock()
			changed := !sameView(last, st)
			last = st
			mu.Unlock()
			if changed || st.Tick < lastTick {
				fmt.Print(render(st))
			}
			lastTick = st.Tick
		}
	}
}
