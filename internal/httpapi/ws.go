package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/narrador/internal/game"
	"github.com/ent0n29/narrador/internal/protocol"
	"github.com/ent0n29/narrador/internal/session"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// invalidMessage carries a parse failure from the reader to the session loop
// so that only one goroutine produces outbound messages.
type invalidMessage struct {
	err error
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Active(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 64)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer close(outbound)
		defer cancel()
		s.runConnection(ctx, sess, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		broken := false
		for {
			select {
			case msg, ok := <-outbound:
				if !ok {
					if !broken {
						_ = conn.WriteControl(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
							time.Now().Add(wsWriteTimeout))
					}
					return
				}
				if broken {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					broken = true
					cancel()
					continue
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessage("outbound", string(t))
				}
			case <-ticker.C:
				if broken {
					continue
				}
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					broken = true
					cancel()
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var next any
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			next = invalidMessage{err: err}
		} else {
			next = parsed
			if t, ok := messageTypeOf(parsed); ok {
				s.metrics.WSMessage("inbound", string(t))
			}
		}

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- next:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvent("ws_disconnected")
}

// runConnection serves one websocket client. Messages are handled in order,
// so a connection never has two narration requests in flight.
func (s *Server) runConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) {
	outbound <- protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sess.ID,
		Code:      "connected",
		Detail:    sess.Game.AdventureID(),
	}
	if d := sess.Game.State().Directive; d != nil {
		outbound <- protocol.DiceRollRequest{Type: protocol.TypeDiceRollRequest, SessionID: sess.ID, Reason: d.Reason}
	}

	for {
		var raw any
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			raw = msg
		}

		if _, err := s.sessions.Active(sess.ID); err != nil {
			outbound <- errorEvent(sess.ID, "session_ended", false, err.Error())
			return
		}

		switch msg := raw.(type) {
		case invalidMessage:
			outbound <- errorEvent(sess.ID, "invalid_client_message", false, msg.err.Error())
		case protocol.PlayerText:
			out, err := sess.Game.SubmitPlayerText(ctx, msg.Text)
			s.deliverOutcome(sess, out, err, outbound)
		case protocol.DiceRoll:
			roll := game.RollD20()
			if msg.Result != nil {
				roll = *msg.Result
			}
			out, err := sess.Game.ResolveDirective(ctx, roll)
			s.deliverOutcome(sess, out, err, outbound)
		case protocol.ClientControl:
			switch msg.Action {
			case protocol.ActionDiscard:
				if err := sess.Game.Discard(); err != nil {
					_, code := gameErrorStatus(err)
					outbound <- errorEvent(sess.ID, code, true, err.Error())
					continue
				}
				s.metrics.SessionEvent("discarded")
				outbound <- protocol.SystemEvent{
					Type:      protocol.TypeSystemEvent,
					SessionID: sess.ID,
					Code:      "adventure_discarded",
					Detail:    sess.Game.AdventureID(),
				}
			case protocol.ActionEnd:
				if _, err := s.sessions.End(sess.ID); err != nil {
					log.Warn().Err(err).Str("session_id", sess.ID).Msg("ending session from websocket failed")
				}
				s.metrics.SetActiveSessions(s.sessions.ActiveCount())
				s.metrics.SessionEvent("ended")
				outbound <- protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "session_ended"}
				return
			}
		}
	}
}

func (s *Server) deliverOutcome(sess *session.Session, out game.Outcome, err error, outbound chan<- any) {
	if err != nil {
		_, code := gameErrorStatus(err)
		outbound <- errorEvent(sess.ID, code, true, err.Error())
		return
	}
	_ = s.sessions.Touch(sess.ID)

	outbound <- protocol.Narration{
		Type:         protocol.TypeNarration,
		SessionID:    sess.ID,
		AdventureID:  out.AdventureID,
		TurnID:       out.Turn.ID,
		Text:         out.Display,
		Source:       string(out.Source),
		Provider:     out.ProviderName,
		StoryLog:     out.Log,
		SaveLaunched: out.SaveLaunched,
	}
	if out.Directive != nil {
		outbound <- protocol.DiceRollRequest{
			Type:      protocol.TypeDiceRollRequest,
			SessionID: sess.ID,
			Reason:    out.Directive.Reason,
		}
	}
}

func errorEvent(sessionID, code string, retryable bool, detail string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Retryable: retryable,
		Detail:    detail,
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.PlayerText:
		return m.Type, true
	case protocol.DiceRoll:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.Narration:
		return m.Type, true
	case protocol.DiceRollRequest:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
