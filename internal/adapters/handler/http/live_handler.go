package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
)

// LiveHandler streams broadcast envelopes over a websocket. Every caller
// gets their own voter channel, admins also get the admin room, and an
// optional ?election=<id> adds that election's tally channel.
type LiveHandler struct {
	subscriber ports.Subscriber
	upgrader   websocket.Upgrader
	log        *slog.Logger
}

func NewLiveHandler(subscriber ports.Subscriber, allowedOrigins []string, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: logger,
	}
}

func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}

	channels := []ports.Channel{ports.VoterChannel(user.ID)}
	if user.IsAdmin() {
		channels = append(channels, ports.AdminChannel())
	}
	electionID, err := queryUUID(r.URL.Query(), "election")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if electionID != nil {
		channels = append(channels, ports.ElectionChannel(*electionID))
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := h.subscriber.Subscribe(channels...)
	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)
}

// readPump discards client frames and signals done once the peer goes away.
func (h *LiveHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *LiveHandler) writePump(conn *websocket.Conn, sub ports.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case env, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				h.log.Debug("live write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// originChecker accepts same-origin requests and the configured origins.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
