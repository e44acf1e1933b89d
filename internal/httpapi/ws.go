package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ppvaladez/avatar-interactive/internal/dialogue"
	"github.com/ppvaladez/avatar-interactive/internal/protocol"
	"github.com/ppvaladez/avatar-interactive/internal/session"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleSessionWS pushes state snapshots of one session to the UI and
// applies the control actions it sends back.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, unsubscribe := sess.State.Subscribe()
	defer unsubscribe()
	outbound := make(chan any, 64)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, sessionID, snapshots, outbound, wsPingInterval)
		cancel()
	}()

	emit := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the queue is saturated.
			s.metrics.WSMessages.WithLabelValues("outbound", "drop_full").Inc()
		}
	}

	var running sync.WaitGroup
	conn.SetReadLimit(64 << 10)
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
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			emit(protocol.NewErrorEvent(sessionID, "invalid_client_message", err.Error(), false))
			continue
		}
		control, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", string(control.Type)).Inc()
		if control.SessionID != sessionID {
			emit(protocol.NewErrorEvent(sessionID, "session_mismatch", "control message targets another session", false))
			continue
		}
		sess.Touch()

		running.Add(1)
		go func() {
			defer running.Done()
			if err := s.applyControl(ctx, sess, control); err != nil {
				emit(protocol.NewErrorEvent(sessionID, "control_failed", err.Error(), true))
				return
			}
			emit(protocol.NewSystemEvent(sessionID, "control_applied", control.Action))
		}()
	}

	cancel()
	running.Wait()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

// wsWriteConn is the write half of a websocket connection.
type wsWriteConn interface {
	WriteJSON(v any) error
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// writeLoop is the only writer on conn. It returns when ctx ends or a write
// fails; on failure it closes conn so the reader unblocks.
func (s *Server) writeLoop(ctx context.Context, conn wsWriteConn, sessionID string, snapshots <-chan session.Snapshot, outbound <-chan any, pingEvery time.Duration) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		var msg any
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.metrics.WSMessages.WithLabelValues("outbound", "ping_error").Inc()
				_ = conn.Close()
				return
			}
			continue
		case snap := <-snapshots:
			msg = protocol.NewStateSnapshot(sessionID, snap)
		case msg = <-outbound:
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			s.metrics.WSMessages.WithLabelValues("outbound", "write_error").Inc()
			_ = conn.Close()
			return
		}
		if t, ok := messageTypeOf(msg); ok {
			s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
		}
	}
}

func (s *Server) applyControl(ctx context.Context, sess *session.Session, control protocol.ClientControl) error {
	switch control.Action {
	case protocol.ActionStop:
		err := sess.Controller.Stop(ctx)
		s.refreshActive()
		return err
	case protocol.ActionStartVoice:
		if sess.Controller.Client() == nil {
			return session.ErrNotStarted
		}
		muted := true
		if control.Muted != nil {
			muted = *control.Muted
		}
		sess.VoiceChat.Start(ctx, muted)
	case protocol.ActionStopVoice:
		sess.VoiceChat.Stop(ctx)
	case protocol.ActionMute:
		sess.VoiceChat.Mute()
	case protocol.ActionUnmute:
		sess.VoiceChat.Unmute()
	case protocol.ActionSendText:
		return sess.Controller.SendText(ctx, control.Text)
	case protocol.ActionDialogNext:
		sess.Steps.LoadNext(ctx)
	case protocol.ActionDialogReset:
		sess.Steps.Reset()
	case protocol.ActionPlayDialogue:
		script := control.Text
		if strings.TrimSpace(script) == "" {
			entry, ok := dialogue.Find(control.Label)
			if !ok {
				return dialogue.ErrUnknownScript
			}
			script = entry.Script
		}
		if sess.Controller.Client() == nil {
			return session.ErrNotStarted
		}
		return sess.Player.Play(ctx, script)
	}
	return nil
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.StateSnapshot:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
