package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evcraddock/front-desk/internal/docstore"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingPeriod   = streamPongWait * 9 / 10
)

// handleStream upgrades to a websocket and pushes every snapshot of the
// visits collection, newest first, as a docstore.Message. A subscription
// error is sent once and closes the stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("upgrading stream", "err", err)
		return
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			slog.Debug("closing stream", "err", cerr)
		}
	}()

	// Only the most recent message matters; a slow reader skips snapshots
	// rather than blocking the store.
	latest := make(chan docstore.Message, 1)
	push := func(m docstore.Message) {
		select {
		case <-latest:
		default:
		}
		select {
		case latest <- m:
		default:
		}
	}

	unsub, err := s.store.Subscribe(docstore.NewestFirst(s.cfg.Collection),
		func(docs []docstore.Document) { push(docstore.SnapshotMessage(docs)) },
		func(err error) { push(docstore.ErrorMessage(err)) },
	)
	if err != nil {
		slog.Error("subscribing stream", "err", err)
		s.writeStream(conn, docstore.ErrorMessage(err))
		return
	}
	defer unsub()

	// The read pump only handles control frames and notices disconnects.
	done := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case m := <-latest:
			if !s.writeStream(conn, m) {
				return
			}
			if m.Type == docstore.MessageError {
				s.closeStream(conn, websocket.CloseInternalServerErr, m.Error)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeStream(conn *websocket.Conn, m docstore.Message) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(m); err != nil {
		slog.Debug("writing stream message", "err", err)
		return false
	}
	return true
}

func (s *Server) closeStream(conn *websocket.Conn, code int, reason string) {
	if len(reason) > 120 {
		reason = reason[:120]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteTimeout)); err != nil {
		slog.Debug("closing stream", "err", err)
	}
}
