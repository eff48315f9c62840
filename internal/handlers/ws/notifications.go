package ws

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/services"
)

// Feed streams notifications to browser clients over a WebSocket. Each
// connection is one subscriber; ?types= narrows delivery to the named
// notification types.
type Feed struct {
	notify *services.NotificationService
	auth   *services.AuthService

	pingInterval time.Duration
	writeTimeout time.Duration

	logger *zap.Logger
}

func NewFeed(notify *services.NotificationService, auth *services.AuthService, logger *zap.Logger) *Feed {
	return &Feed{
		notify:       notify,
		auth:         auth,
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// ServeFeed upgrades the request and pushes notifications until the client
// disconnects. When the auth service is configured a valid ?token= is
// required.
func (f *Feed) ServeFeed(w http.ResponseWriter, r *http.Request) {
	if f.auth != nil {
		if _, err := f.auth.ValidateToken(r.URL.Query().Get("token")); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	settings := feedSettings(r.URL.Query().Get("types"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &feedConn{feed: f, conn: conn, done: make(chan struct{})}
	defer c.close()

	unsub := f.notify.Subscribe(settings, func(n domain.Notification) {
		c.send(EventMessage{Type: "notification", Notification: &n})
	})
	defer unsub()

	go c.pingLoop()

	// inbound traffic is ignored, the read loop only notices disconnects
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// feedSettings builds subscriber settings from the ?types= filter. An empty
// filter delivers every type.
func feedSettings(types string) domain.NotificationSettings {
	settings := domain.DefaultNotificationSettings()
	if types == "" {
		return settings
	}
	for t := range settings.Types {
		settings.Types[t] = false
	}
	for _, t := range strings.Split(types, ",") {
		settings.Types[domain.NotificationType(strings.TrimSpace(t))] = true
	}
	return settings
}

type feedConn struct {
	feed *Feed
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *feedConn) send(msg EventMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return
	default:
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.feed.writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.feed.logger.Debug("websocket write failed", zap.Error(err))
	}
}

func (c *feedConn) pingLoop() {
	ticker := time.NewTicker(c.feed.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.feed.writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *feedConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
