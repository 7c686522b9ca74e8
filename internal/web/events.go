package web

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsReadLimit  = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts same-host pages, browser extensions and clients that
// send no Origin.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "chrome-extension", "moz-extension", "safari-web-extension":
		return true
	}
	return strings.EqualFold(u.Host, r.Host)
}

// safeConn serializes writes to a websocket connection.
type safeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) writeJSON(v any) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_ = sc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return sc.conn.WriteJSON(v)
}

func (sc *safeConn) ping() error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// HandleEvents handles GET /api/events: a websocket that streams bus events
// (storage key changes, saves, notices) until either side goes away.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		renderAPIError(w, r, errors.NewInvalidRequest("event stream is not enabled"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sc := &safeConn{conn: conn}
	defer conn.Close()

	subID := "ws-" + uuid.NewString()
	ch := h.bus.Subscribe(subID)
	defer h.bus.Unsubscribe(subID)

	h.log.Debug().Str("subscriber", subID).Msg("event stream connected")

	if err := sc.writeJSON(events.Event{
		ID:        uuid.NewString(),
		Type:      "connected",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"subscriber": subID},
	}); err != nil {
		return
	}

	// Reader: clients send nothing meaningful, but reading is required to
	// process pongs and notice closes.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug().Err(err).Str("subscriber", subID).Msg("event stream read error")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-readDone:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := sc.writeJSON(ev); err != nil {
				h.log.Debug().Err(err).Str("subscriber", subID).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			if err := sc.ping(); err != nil {
				return
			}
		}
	}
}
