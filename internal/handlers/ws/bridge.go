package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/internal/core/services"
	"aimon/pkg/validation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // tighten for production deployments
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Bridge forwards signaling channel changes to browser clients over a
// WebSocket, one connection per watched session. Inbound messages let the
// browser publish its answer and candidates through the same socket.
type Bridge struct {
	channel ports.SignalingChannel
	auth    *services.AuthService

	pingInterval time.Duration
	writeTimeout time.Duration
	readTimeout  time.Duration

	logger *zap.Logger
}

type EventMessage struct {
	Type         string                     `json:"type"`
	Session      *domain.CallSession        `json:"session,omitempty"`
	Candidate    *domain.IceCandidateRecord `json:"candidate,omitempty"`
	Notification *domain.Notification       `json:"notification,omitempty"`
	Error        string                     `json:"error,omitempty"`
}

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type AnswerPayload struct {
	SDP string `json:"sdp"`
}

type CandidatePayload struct {
	Side          string `json:"side"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid,omitempty"`
	SDPMLineIndex uint16 `json:"sdp_mline_index"`
}

func NewBridge(channel ports.SignalingChannel, auth *services.AuthService, logger *zap.Logger) *Bridge {
	return &Bridge{
		channel:      channel,
		auth:         auth,
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		readTimeout:  90 * time.Second,
		logger:       logger,
	}
}

// ServeSession upgrades the request and streams updates for the session until
// the client disconnects. The client identifies itself with ?side=offer or
// ?side=answer; it receives the opposite side's candidates. When the auth
// service is configured a valid ?token= is required.
func (b *Bridge) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var userID domain.UserID
	if b.auth != nil {
		claims, err := b.auth.ValidateToken(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID = claims.UserID
	}

	side := domain.CandidateSide(r.URL.Query().Get("side"))
	if side != "" && !side.Valid() {
		http.Error(w, "invalid side", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &bridgeConn{
		bridge:    b,
		conn:      conn,
		sessionID: domain.SessionID(sessionID),
		side:      side,
		userID:    userID,
		done:      make(chan struct{}),
	}
	c.run(r)
}

type bridgeConn struct {
	bridge    *Bridge
	conn      *websocket.Conn
	sessionID domain.SessionID
	side      domain.CandidateSide
	userID    domain.UserID

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *bridgeConn) run(r *http.Request) {
	defer c.close()

	b := c.bridge
	ctx := r.Context()

	unsubSession, err := b.channel.WatchSession(ctx, c.sessionID, func(s *domain.CallSession) {
		c.send(EventMessage{Type: "session", Session: s})
	})
	if err != nil {
		b.logger.Warn("session watch failed",
			zap.String("session_id", string(c.sessionID)),
			zap.Error(err))
		c.send(EventMessage{Type: "error", Error: "session watch failed"})
		return
	}
	defer unsubSession()

	var unsubs []ports.Unsubscribe
	for _, watched := range c.watchedSides() {
		unsub, err := b.channel.WatchCandidates(ctx, c.sessionID, watched, func(cand domain.IceCandidateRecord) {
			c.send(EventMessage{Type: "candidate", Candidate: &cand})
		})
		if err != nil {
			b.logger.Warn("candidate watch failed",
				zap.String("session_id", string(c.sessionID)),
				zap.String("side", string(watched)),
				zap.Error(err))
			continue
		}
		unsubs = append(unsubs, unsub)
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	go c.pingLoop()

	c.readLoop(ctx)
}

// watchedSides resolves which candidate collections this client consumes.
// A side-tagged client reads the opposite side; an untagged observer reads both.
func (c *bridgeConn) watchedSides() []domain.CandidateSide {
	if c.side.Valid() {
		return []domain.CandidateSide{c.side.Opposite()}
	}
	return []domain.CandidateSide{domain.SideOffer, domain.SideAnswer}
}

func (c *bridgeConn) readLoop(ctx context.Context) {
	b := c.bridge
	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(b.readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(b.readTimeout))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(b.readTimeout))

		switch msg.Type {
		case "answer":
			c.handleAnswer(ctx, msg.Payload)
		case "candidate":
			c.handleCandidate(ctx, msg.Payload)
		case "ping":
			c.send(EventMessage{Type: "pong"})
		default:
			c.send(EventMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

func (c *bridgeConn) handleAnswer(ctx context.Context, payload json.RawMessage) {
	var p AnswerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.send(EventMessage{Type: "error", Error: "malformed answer payload"})
		return
	}

	answer := &domain.SessionDescription{
		Type:         domain.SDPTypeAnswer,
		SDP:          p.SDP,
		OriginatorID: c.userID,
	}
	if err := c.bridge.channel.PublishAnswer(ctx, c.sessionID, answer); err != nil {
		c.send(EventMessage{Type: "error", Error: err.Error()})
	}
}

func (c *bridgeConn) handleCandidate(ctx context.Context, payload json.RawMessage) {
	var p CandidatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.send(EventMessage{Type: "error", Error: "malformed candidate payload"})
		return
	}

	side := domain.CandidateSide(p.Side)
	if side == "" {
		side = c.side
	}
	cand := domain.IceCandidateRecord{
		SessionID:     c.sessionID,
		Side:          side,
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if err := c.bridge.channel.AppendCandidate(ctx, cand); err != nil {
		// dropped candidates degrade connectivity but do not end the call
		c.send(EventMessage{Type: "error", Error: err.Error()})
	}
}

func (c *bridgeConn) pingLoop() {
	ticker := time.NewTicker(c.bridge.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.bridge.writeTimeout))
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

func (c *bridgeConn) send(msg EventMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return
	default:
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.bridge.writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.bridge.logger.Debug("websocket write failed",
			zap.String("session_id", string(c.sessionID)),
			zap.Error(err))
	}
}

func (c *bridgeConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
