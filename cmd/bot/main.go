// Command bot plays an AquaFlow server over the websocket protocol.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/flow"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "client name")
		configDir = flag.String("configs", "./configs", "config directory (for the port table)")
		every     = flag.Duration("every", 500*time.Millisecond, "minimum gap between commands")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	ports := flow.DefaultPorts()
	if cats, err := catalogs.Load(*configDir); err == nil {
		ports = cats.Items.Ports
	} else {
		logger.Printf("catalogs: %v; using default ports", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Frames:          true,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	pl := &planner{ports: ports}
	var (
		board    protocol.BoardMsg
		haveB    bool
		money    int64
		pending  bool
		lastSent time.Time
	)
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
			logger.Printf("WELCOME run=%s grid=%d seed=%d", w.RunID, w.Params.GridSize, w.Params.Seed)
		case protocol.TypeBoard:
			if err := json.Unmarshal(msg, &board); err != nil {
				continue
			}
			haveB = true
		case protocol.TypeFrame:
			var f protocol.FrameMsg
			if err := json.Unmarshal(msg, &f); err != nil {
				continue
			}
			money = f.Money
		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			pending = false
			if !a.Accepted {
				logger.Printf("%s rejected: %s %s", a.AckFor, a.Code, a.Message)
			}
		}

		if !haveB || pending || time.Since(lastSent) < *every {
			continue
		}
		cmd, ok := pl.next(board, money)
		if !ok {
			continue
		}
		if err := conn.WriteJSON(cmd); err != nil {
			return
		}
		pending = true
		lastSent = time.Now()
	}
}
