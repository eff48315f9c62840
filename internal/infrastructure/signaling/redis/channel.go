package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
)

const publishAnswerRetries = 3

// Channel implements ports.SignalingChannel on Redis. Session records are
// JSON values, candidates are RPUSH'd lists, and watchers ride pub/sub so
// every gateway instance sees the same signaling state.
type Channel struct {
	client *redis.Client
	logger *zap.Logger
	prefix string

	sessionTTL time.Duration
}

func NewChannel(client *redis.Client, logger *zap.Logger) *Channel {
	return &Channel{
		client:     client,
		logger:     logger,
		prefix:     "aimon:session:",
		sessionTTL: 24 * time.Hour,
	}
}

var _ ports.SignalingChannel = (*Channel)(nil)

func (c *Channel) sessionKey(id domain.SessionID) string {
	return c.prefix + string(id)
}

func (c *Channel) candidatesKey(id domain.SessionID, side domain.CandidateSide) string {
	return fmt.Sprintf("%s%s:cand:%s", c.prefix, id, side)
}

func (c *Channel) sessionTopic(id domain.SessionID) string {
	return c.prefix + string(id) + ":events"
}

func (c *Channel) candidateTopic(id domain.SessionID, side domain.CandidateSide) string {
	return fmt.Sprintf("%s%s:cand:%s:events", c.prefix, id, side)
}

func (c *Channel) CreateSession(ctx context.Context, id domain.SessionID, offer *domain.SessionDescription) error {
	if id == "" {
		return domain.ErrInvalidSessionID
	}
	if err := offer.Validate(); err != nil {
		return err
	}
	if offer.Type != domain.SDPTypeOffer {
		return fmt.Errorf("%w: expected offer, got %q", domain.ErrMalformedSignalingData, offer.Type)
	}

	session := &domain.CallSession{
		ID:        id,
		Offer:     offer,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// a fresh offer restarts the call, stale candidates go with it
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.sessionKey(id), data, c.sessionTTL)
	pipe.Del(ctx, c.candidatesKey(id, domain.SideOffer), c.candidatesKey(id, domain.SideAnswer))
	pipe.Publish(ctx, c.sessionTopic(id), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelWrite, err)
	}

	c.logger.Debug("session created", zap.String("session_id", string(id)))
	return nil
}

func (c *Channel) GetSession(ctx context.Context, id domain.SessionID) (*domain.CallSession, error) {
	data, err := c.client.Get(ctx, c.sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.CallSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedSignalingData, err)
	}
	return &session, nil
}

// PublishAnswer appends the answer under an optimistic transaction so two
// viewers racing for the same session cannot both win.
func (c *Channel) PublishAnswer(ctx context.Context, id domain.SessionID, answer *domain.SessionDescription) error {
	if err := answer.Validate(); err != nil {
		return err
	}
	if answer.Type != domain.SDPTypeAnswer {
		return fmt.Errorf("%w: expected answer, got %q", domain.ErrMalformedSignalingData, answer.Type)
	}

	key := c.sessionKey(id)
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get session from Redis: %w", err)
		}

		var session domain.CallSession
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedSignalingData, err)
		}
		if session.Offer == nil {
			return domain.ErrOfferMissing
		}
		if session.Answer != nil {
			return domain.ErrAnswerExists
		}

		session.Answer = answer
		updated, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, c.sessionTTL)
			pipe.Publish(ctx, c.sessionTopic(id), updated)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < publishAnswerRetries; i++ {
		err = c.client.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		return err
	}

	c.logger.Debug("answer published", zap.String("session_id", string(id)))
	return nil
}

func (c *Channel) WatchSession(ctx context.Context, id domain.SessionID, fn func(*domain.CallSession)) (ports.Unsubscribe, error) {
	if fn == nil {
		return nil, fmt.Errorf("watch callback must not be nil")
	}

	sub := c.client.Subscribe(ctx, c.sessionTopic(id))
	// force the SUBSCRIBE round trip so no update slips past setup
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to session updates: %w", err)
	}

	// replay current state after the subscription is live
	if session, err := c.GetSession(ctx, id); err == nil {
		fn(session)
	}

	go func() {
		for msg := range sub.Channel() {
			var session domain.CallSession
			if err := json.Unmarshal([]byte(msg.Payload), &session); err != nil {
				c.logger.Warn("dropping malformed session update",
					zap.String("session_id", string(id)),
					zap.Error(err))
				continue
			}
			fn(&session)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { _ = sub.Close() })
	}, nil
}

func (c *Channel) AppendCandidate(ctx context.Context, cand domain.IceCandidateRecord) error {
	if err := cand.Validate(); err != nil {
		return err
	}

	exists, err := c.client.Exists(ctx, c.sessionKey(cand.SessionID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelWrite, err)
	}
	if exists == 0 {
		return domain.ErrSessionNotFound
	}

	data, err := json.Marshal(cand)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, c.candidatesKey(cand.SessionID, cand.Side), data)
	pipe.Expire(ctx, c.candidatesKey(cand.SessionID, cand.Side), c.sessionTTL)
	pipe.Publish(ctx, c.candidateTopic(cand.SessionID, cand.Side), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelWrite, err)
	}
	return nil
}

func (c *Channel) WatchCandidates(ctx context.Context, id domain.SessionID, side domain.CandidateSide, fn func(domain.IceCandidateRecord)) (ports.Unsubscribe, error) {
	if fn == nil {
		return nil, fmt.Errorf("watch callback must not be nil")
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: unknown candidate side %q", domain.ErrMalformedSignalingData, side)
	}

	sub := c.client.Subscribe(ctx, c.candidateTopic(id, side))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to candidate updates: %w", err)
	}

	// Backlog replay happens after the subscription is live. A candidate
	// appended in between arrives twice; consumers apply idempotently.
	backlog, err := c.client.LRange(ctx, c.candidatesKey(id, side), 0, -1).Result()
	if err != nil && err != redis.Nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to read candidate backlog: %w", err)
	}
	for _, raw := range backlog {
		if cand, ok := c.decodeCandidate(id, raw); ok {
			fn(cand)
		}
	}

	go func() {
		for msg := range sub.Channel() {
			if cand, ok := c.decodeCandidate(id, msg.Payload); ok {
				fn(cand)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { _ = sub.Close() })
	}, nil
}

func (c *Channel) decodeCandidate(id domain.SessionID, raw string) (domain.IceCandidateRecord, bool) {
	var cand domain.IceCandidateRecord
	if err := json.Unmarshal([]byte(raw), &cand); err != nil {
		c.logger.Warn("dropping malformed candidate",
			zap.String("session_id", string(id)),
			zap.Error(err))
		return domain.IceCandidateRecord{}, false
	}
	return cand, true
}

// DeleteSession removes the session record and both candidate lists.
func (c *Channel) DeleteSession(ctx context.Context, id domain.SessionID) error {
	removed, err := c.client.Del(ctx,
		c.sessionKey(id),
		c.candidatesKey(id, domain.SideOffer),
		c.candidatesKey(id, domain.SideAnswer),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelWrite, err)
	}
	if removed == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
