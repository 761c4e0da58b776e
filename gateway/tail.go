package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleTail upgrades to a websocket and streams every record written to the
// channel as a text message. The stream ends when the client goes away or
// the runtime closes its subscribers.
func (g *Gateway) handleTail(w http.ResponseWriter, r *http.Request) {
	idx, ch, ok := g.resolve(w, r)
	if !ok {
		return
	}
	records, cancel, err := g.backend.Subscribe(idx)
	if err != nil {
		g.writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	defer cancel()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		g.requestsFailed.Add(1)
		return
	}
	defer conn.Close()

	g.activeTails.Add(1)
	defer g.activeTails.Add(-1)
	logger := g.logger.With("channel", ch.Name(), "remote", r.RemoteAddr)
	logger.Debug("Tail opened")

	// the reader only watches for close frames and keeps pongs flowing
	gone := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			logger.Debug("Tail closed by client")
			return
		case rec, ok := <-records:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "runtime closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, rec); err != nil {
				logger.Debug("Tail write failed", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
