package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/onesky/internal/assistant"
	"github.com/ent0n29/onesky/internal/auth"
	"github.com/ent0n29/onesky/internal/logging"
	"github.com/ent0n29/onesky/internal/policy"
	"github.com/ent0n29/onesky/internal/protocol"
	"github.com/ent0n29/onesky/internal/session"
)

// EmptyMessageText answers a blank socket message.
const EmptyMessageText = "Please type a message."

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsQueueSize    = 8
)

type chatRequest struct {
	Message string `json:"message"`
}

func identityOf(ctx context.Context) string {
	if id, ok := auth.FromContext(ctx); ok {
		return id.Email
	}
	return ""
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chatbot not configured")
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "No message provided")
		return
	}

	reply, err := s.assistant.Process(r.Context(), req.Message, identityOf(r.Context()))
	if err != nil {
		if assistant.IsRejected(err) {
			respondError(w, http.StatusBadRequest, "rejected_message", "Sorry, I can't process that request.")
			return
		}
		s.internalError(w, r, "chat", err)
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chatbot not configured")
		return
	}
	identity := identityOf(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sess := s.sessions.Create(identity, r.RemoteAddr)
	s.metrics.SetActiveChatSockets(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("ws_connected")
	log := s.log.With().Str("session_id", sess.ID).Logger()
	log.Debug().Bool("anonymous", identity == "").Msg("chat socket opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.conns.Store(sess.ID, cancel)
	// A blocked read only returns once the connection is closed.
	stopClose := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopClose()

	inbound := make(chan protocol.ChatbotMessage, wsQueueSize)
	outbound := make(chan any, 64)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, conn, outbound)
	}()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for msg := range inbound {
			if ctx.Err() != nil {
				continue
			}
			s.answer(ctx, sess, msg, outbound)
		}
	}()

	s.send(ctx, outbound, protocol.SessionStarted{
		Type:      protocol.TypeSessionStarted,
		SessionID: sess.ID,
		Anonymous: identity == "",
	})

	conn.SetReadLimit(protocol.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		_ = s.sessions.Touch(sess.ID)

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.metrics.ObserveWSMessage("inbound", "invalid")
			s.send(ctx, outbound, protocol.NewError("", "invalid_client_message", err.Error(), false))
			continue
		}
		switch m := parsed.(type) {
		case protocol.Ping:
			s.metrics.ObserveWSMessage("inbound", string(protocol.TypePing))
			s.send(ctx, outbound, protocol.Pong{Type: protocol.TypePong})
		case protocol.ChatbotMessage:
			s.metrics.ObserveWSMessage("inbound", string(protocol.TypeChatbotMessage))
			if m.RequestID == "" {
				m.RequestID = uuid.NewString()
			}
			select {
			case inbound <- m:
			default:
				s.send(ctx, outbound, protocol.NewError(m.RequestID, "busy", "too many pending messages", true))
			}
		}
	}

	cancel()
	close(inbound)
	<-workerDone
	<-writerDone
	s.conns.Delete(sess.ID)
	_, _ = s.sessions.End(sess.ID)
	s.metrics.SetActiveChatSockets(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("ws_disconnected")
	log.Debug().Msg("chat socket closed")
}

// answer streams the reply to one socket message. Messages on a socket are
// answered one at a time.
func (s *Server) answer(ctx context.Context, sess *session.Session, msg protocol.ChatbotMessage, outbound chan<- any) {
	if strings.TrimSpace(msg.Message) == "" {
		s.send(ctx, outbound, protocol.NewChatbotResponse(msg.RequestID, assistant.StreamEvent{
			Response: EmptyMessageText,
			Category: assistant.KindGeneral,
			Stream:   true,
			Done:     true,
		}))
		return
	}

	_ = s.sessions.BeginMessage(sess.ID, msg.RequestID)
	defer func() { _ = s.sessions.FinishMessage(sess.ID) }()

	ctx = logging.WithRequestID(ctx, msg.RequestID)
	logging.Ctx(ctx).Debug().Str("session_id", sess.ID).Str("message", policy.Redact(msg.Message)).Msg("socket chat message")

	err := s.assistant.ProcessStream(ctx, msg.Message, sess.Identity, func(ev assistant.StreamEvent) error {
		if !s.send(ctx, outbound, protocol.NewChatbotResponse(msg.RequestID, ev)) {
			return ctx.Err()
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		logging.Ctx(ctx).Error().Err(err).Str("session_id", sess.ID).Msg("streamed chat failed")
		s.send(ctx, outbound, protocol.NewError(msg.RequestID, "chat_failed", "Sorry, I encountered an error. Please try again.", true))
	}
}

// send queues a frame for the writer. It reports false once the socket is
// closing.
func (s *Server) send(ctx context.Context, outbound chan<- any, msg any) bool {
	select {
	case <-ctx.Done():
		return false
	case outbound <- msg:
		return true
	}
}

// writeLoop is the only goroutine writing data frames to conn.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, outbound <-chan any) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				s.metrics.ObserveWSWriteError("ping")
				cancel()
				return
			}
		case msg := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.ObserveWSWriteError("write_json")
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatbotResponse:
		return m.Type, true
	case protocol.SessionStarted:
		return m.Type, true
	case protocol.Pong:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
