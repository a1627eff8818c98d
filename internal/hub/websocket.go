package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhle/tido/internal/logging"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 64 << 10
)

// Handler upgrades requests to websocket connections served by the hub.
// With no allowed origins only same-origin browsers may connect; clients
// that send no Origin header are always accepted.
func (h *Hub) Handler(allowedOrigins []string) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[strings.TrimRight(o, "/")] = true
		}
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Security(h.logger, "websocket upgrade refused",
				"remote_addr", r.RemoteAddr, "origin", r.Header.Get("Origin"), "error", err)
			return
		}
		h.Serve(r.Context(), newWSTransport(ws))
	})
}

type wsTransport struct {
	conn *websocket.Conn
	once gosync.Once
	done chan struct{}
}

func newWSTransport(c *websocket.Conn) *wsTransport {
	t := &wsTransport{conn: c, done: make(chan struct{})}
	c.SetReadLimit(maxFrameSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})
	go t.ping()
	return t
}

func (t *wsTransport) ping() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				t.Close()
				return
			}
		case <-t.done:
			return
		}
	}
}

// Read returns the next frame. A frame that is not a JSON envelope comes
// back with an empty event so the hub can answer it with an error.
func (t *wsTransport) Read(context.Context) (Inbound, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return Inbound{}, err
	}
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, nil
	}
	return in, nil
}

func (t *wsTransport) Write(_ context.Context, msg Message) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteJSON(msg)
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}
