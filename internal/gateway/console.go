package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/mgrall/skald/internal/command"
	"github.com/mgrall/skald/pkg/message"
)

// consoleInbound is one line typed by the operator.
type consoleInbound struct {
	Text string `json:"text"`
}

// consoleOutbound is one frame sent back to the operator.
type consoleOutbound struct {
	Type string `json:"type"` // "reply" or "error"
	Text string `json:"text"`
}

// handleConsole upgrades to a WebSocket and runs the operator console. Each
// text frame is dispatched as a command on the control surface; replies come
// back on the same connection instead of the platform.
func (g *Gateway) handleConsole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("console accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		g.logger.Info("console session opened", "remote", r.RemoteAddr)
		session := &consoleSession{conn: conn}
		g.consoleLoop(r.Context(), conn, session)
		g.logger.Info("console session closed", "remote", r.RemoteAddr)
	}
}

func (g *Gateway) consoleLoop(ctx context.Context, conn *websocket.Conn, session *consoleSession) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var in consoleInbound
		if err := json.Unmarshal(data, &in); err != nil {
			session.sendFrame(ctx, consoleOutbound{Type: "error", Text: "invalid frame"})
			continue
		}
		if in.Text == "" {
			continue
		}

		ev := message.NewInboundEvent(in.Text,
			message.Sender{ID: g.config.Console.SenderID},
			message.Scope{Type: message.ScopeDirect},
			message.SurfaceControl,
		)

		switch g.host.Dispatcher().DispatchTo(ctx, ev, session) {
		case command.ResultIgnored:
			session.sendFrame(ctx, consoleOutbound{Type: "error", Text: "commands start with the default prefix"})
		case command.ResultUnknown:
			session.sendFrame(ctx, consoleOutbound{Type: "error", Text: "unknown command"})
		}
	}
}

// consoleSession adapts one WebSocket connection to command.ReplySender.
type consoleSession struct {
	conn *websocket.Conn
}

func (s *consoleSession) Send(ctx context.Context, reply message.Reply) error {
	return s.sendFrame(ctx, consoleOutbound{Type: "reply", Text: reply.Text})
}

func (s *consoleSession) sendFrame(ctx context.Context, frame consoleOutbound) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}
