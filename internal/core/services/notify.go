package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/pkg/utils"
)

// NotificationService fans detection and system events out to registered
// listeners, filtered by each listener's settings.
type NotificationService struct {
	tokens ports.TokenStore
	logger *zap.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]*listener
}

type listener struct {
	settings domain.NotificationSettings
	fn       func(domain.Notification)
}

func NewNotificationService(tokens ports.TokenStore, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		tokens:    tokens,
		logger:    logger,
		listeners: make(map[int]*listener),
	}
}

// Subscribe registers a listener. The returned disposer is idempotent.
func (s *NotificationService) Subscribe(settings domain.NotificationSettings, fn func(domain.Notification)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = &listener{settings: settings, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *NotificationService) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Notify builds and delivers a notification to every listener whose settings
// allow its type.
func (s *NotificationService) Notify(ctx context.Context, typ domain.NotificationType, title, message string, data map[string]string) domain.Notification {
	n := domain.Notification{
		ID:        utils.GenerateRequestID(),
		Title:     title,
		Message:   message,
		Type:      typ,
		Data:      data,
		CreatedAt: utils.Now(),
	}
	s.Publish(ctx, n)
	return n
}

// Publish delivers an already-built notification.
func (s *NotificationService) Publish(ctx context.Context, n domain.Notification) {
	s.mu.Lock()
	targets := make([]func(domain.Notification), 0, len(s.listeners))
	filtered := 0
	for _, l := range s.listeners {
		if l.settings.Allows(n.Type) {
			targets = append(targets, l.fn)
		} else {
			filtered++
		}
	}
	s.mu.Unlock()

	for _, fn := range targets {
		fn(n)
	}

	// user-scoped notifications also address the user's registered push
	// devices; delivery happens out of process
	pushTargets := 0
	if uid := n.Data["user_id"]; uid != "" {
		if tokens, err := s.PushTargets(ctx, domain.UserID(uid)); err != nil {
			s.logger.Warn("failed to resolve push targets", zap.Error(err))
		} else {
			pushTargets = len(tokens)
		}
	}

	s.logger.Debug("notification published",
		zap.String("type", string(n.Type)),
		zap.Int("delivered", len(targets)),
		zap.Int("filtered", filtered),
		zap.Int("push_targets", pushTargets))
}

// PushTargets resolves the device tokens a push delivery for userID would
// address. Delivery itself is handled by the push gateway out of process.
func (s *NotificationService) PushTargets(ctx context.Context, userID domain.UserID) ([]string, error) {
	if s.tokens == nil {
		return nil, nil
	}
	return s.tokens.Tokens(ctx, userID)
}

// StreamStarted is a convenience emitter used by the session services.
func (s *NotificationService) StreamStarted(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) {
	s.Notify(ctx, domain.NotifyStream, "Stream started",
		"A monitored stream went live",
		map[string]string{
			"session_id": string(sessionID),
			"user_id":    string(userID),
			"at":         utils.Now().Format(time.RFC3339),
		})
}
