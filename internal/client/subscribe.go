package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evcraddock/front-desk/internal/docstore"
)

// ErrUnsupportedQuery is returned for queries the stream cannot serve.
// The server streams its visits collection newest first.
var ErrUnsupportedQuery = errors.New("stream only serves newest-first visits")

// Subscribe opens the server's live visit stream. It implements
// docstore.Subscriber, so a live.Collection can mirror a remote server.
// Snapshots arrive on a single reader goroutine in server order. A closed
// connection or an error frame is delivered once to onError and ends the
// subscription.
func (c *Client) Subscribe(q docstore.Query, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (docstore.Unsubscribe, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.OrderBy != docstore.CreatedAtField || q.Direction != docstore.Desc {
		return nil, ErrUnsupportedQuery
	}

	header := http.Header{}
	c.authorize(header)
	conn, resp, err := c.dialer.Dial(c.streamURL(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("opening stream: %s", resp.Status)
		}
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	s := &stream{conn: conn, closeTimeout: c.closeTimeout}
	go s.read(onSnapshot, onError)
	return s.close, nil
}

func (c *Client) streamURL() string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/visits/stream"
}

type stream struct {
	conn         *websocket.Conn
	closeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// close releases the stream. It may be called from inside a callback. The
// close frame is bounded by closeTimeout so a stalled peer cannot hold up
// the caller.
func (s *stream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.closeTimeout))
	_ = s.conn.Close()
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stream) read(onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) {
	for {
		var m docstore.Message
		err := s.conn.ReadJSON(&m)
		if s.isClosed() {
			return
		}
		if err != nil {
			s.close()
			onError(fmt.Errorf("stream closed: %w", err))
			return
		}

		switch m.Type {
		case docstore.MessageSnapshot:
			onSnapshot(m.Documents)
		case docstore.MessageError:
			s.close()
			onError(errors.New(m.Error))
			return
		}
	}
}

var _ docstore.Subscriber = (*Client)(nil)
