package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/game"
)

// Server speaks the HELLO/WELCOME/BOARD/FRAME/CMD/ACK protocol over websockets for
// one game session.
type Server struct {
	sess         *game.Session
	log          *log.Logger
	tuningDigest string

	upgrader websocket.Upgrader
	// CmdTimeout bounds how long a CMD may wait on a busy session.
	CmdTimeout time.Duration
	// PingInterval is how often the writer pings; PongWait is how long the reader waits
	// for any message or pong before dropping the client. PingInterval must be shorter.
	PingInterval time.Duration
	PongWait     time.Duration
}

func NewServer(sess *game.Session, tuningDigest string, logger *log.Logger) *Server {
	return &Server{
		sess:         sess,
		log:          logger,
		tuningDigest: tuningDigest,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		CmdTimeout:   2 * time.Second,
		PingInterval: 30 * time.Second,
		PongWait:     120 * time.Second,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		hello, ok := s.handshake(conn)
		if !ok {
			return
		}
		subID, frames, err := s.sess.Subscribe(ctx, 8)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "session stopped"), time.Now().Add(time.Second))
			return
		}
		defer s.sess.Unsubscribe(subID)

		if err := s.welcome(ctx, conn); err != nil {
			return
		}

		acks := make(chan protocol.AckMsg, 16)
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()

		// Writer goroutine.
		go func() {
			defer cancel()
			ping := time.NewTicker(s.PingInterval)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						return
					}
				case f, ok := <-frames:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session stopped"), time.Now().Add(time.Second))
						return
					}
					if f.Board != nil {
						if err := writeJSON(conn, *f.Board); err != nil {
							return
						}
					}
					if hello.Frames {
						if err := writeJSON(conn, f.Msg()); err != nil {
							return
						}
					}
				case a := <-acks:
					if err := writeJSON(conn, a); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop. Watch-only clients never send, so pongs keep them alive.
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.PongWait))
		})
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.PongWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ack := s.handleCmd(ctx, msg)
			select {
			case acks <- ack:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return hello, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad HELLO"), time.Now().Add(time.Second))
		return hello, false
	}
	if hello.ProtocolVersion != protocol.Version && !slices.Contains(hello.SupportedVersions, protocol.Version) {
		_ = writeJSON(conn, protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrProtoVersion,
			Message:         "server speaks protocol " + protocol.Version,
		})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return hello, false
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}
	return hello, true
}

// welcome sends WELCOME; the first subscribed frame then delivers the BOARD.
func (s *Server) welcome(ctx context.Context, conn *websocket.Conn) error {
	st, err := s.sess.Snapshot(ctx)
	if err != nil {
		return err
	}
	cfg := s.sess.Config()
	t := cfg.Tuning
	return writeJSON(conn, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SelectedVersion: protocol.Version,
		SessionID:       st.RunID,
		RunID:           st.RunID,
		Params: protocol.SessionParams{
			GridSize:        t.Board.Size,
			DepotSize:       t.Depot.Size,
			TickMs:          t.Clock.TickMs,
			ResourceTickMs:  t.Clock.ResourceTickMs,
			DropletSpeed:    t.Clock.DropletSpeed,
			SpawnIntervalMs: t.Clock.SpawnIntervalMs,
			Seed:            cfg.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			ItemsDigest:  cfg.Items.Digest,
			TuningDigest: s.tuningDigest,
		},
	})
}

func (s *Server) handleCmd(ctx context.Context, msg []byte) protocol.AckMsg {
	nack := func(ref, code, text string) protocol.AckMsg {
		return protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: ref, Code: code, Message: text}
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return nack("", protocol.ErrProtoBadRequest, "invalid json")
	}
	if base.Type != protocol.TypeCmd {
		return nack("", protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
	}
	var m protocol.CmdMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return nack("", protocol.ErrProtoBadRequest, err.Error())
	}
	if m.ProtocolVersion != protocol.Version {
		return nack(m.Ref, protocol.ErrProtoVersion, "bad protocol_version")
	}
	return Execute(ctx, s.sess, m, s.CmdTimeout, s.log)
}

// Execute runs one wire command against sess and returns the ACK to send back.
func Execute(ctx context.Context, sess *game.Session, m protocol.CmdMsg, timeout time.Duration, logger *log.Logger) protocol.AckMsg {
	cmd, err := game.CommandFromMsg(m)
	if err != nil {
		return game.Result{Ref: m.Ref, Code: game.CodeFor(err), Message: err.Error()}.Ack()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := sess.Do(ctx, cmd)
	switch {
	case err == nil:
		return res.Ack()
	case errors.Is(err, context.DeadlineExceeded):
		return game.Result{Ref: m.Ref, Code: protocol.ErrBusy, Message: "session busy"}.Ack()
	default:
		if logger != nil {
			logger.Printf("cmd %s: %v", cmd.Type, err)
		}
		return game.Result{Ref: m.Ref, Code: protocol.ErrInternal, Message: err.Error()}.Ack()
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
