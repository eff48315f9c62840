package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/pkg/utils"
)

type sessionEntry struct {
	session    *domain.CallSession
	candidates map[domain.CandidateSide][]domain.IceCandidateRecord

	sessionWatchers   map[int]func(*domain.CallSession)
	candidateWatchers map[domain.CandidateSide]map[int]func(domain.IceCandidateRecord)
}

// Channel is an in-process ports.SignalingChannel. It backs single-node
// deployments and tests; multi-node setups use the redis implementation.
type Channel struct {
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[domain.SessionID]*sessionEntry
	nextID   int
}

func NewChannel(logger *zap.Logger) *Channel {
	return &Channel{
		logger:   logger,
		sessions: make(map[domain.SessionID]*sessionEntry),
	}
}

var _ ports.SignalingChannel = (*Channel)(nil)

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

	c.mu.Lock()
	entry, ok := c.sessions[id]
	if !ok {
		entry = newEntry()
		c.sessions[id] = entry
	}
	// Recreating a session restarts the call: the offer is replaced and any
	// stale answer and candidates from the previous attempt are dropped.
	entry.session = &domain.CallSession{
		ID:        id,
		Offer:     cloneDescription(offer),
		CreatedAt: utils.Now(),
	}
	entry.candidates = make(map[domain.CandidateSide][]domain.IceCandidateRecord)
	snapshot := entry.session.Clone()
	watchers := entry.sessionWatcherList()
	c.mu.Unlock()

	c.logger.Debug("session created", zap.String("session_id", string(id)))
	notifySession(watchers, snapshot)
	return nil
}

func (c *Channel) GetSession(ctx context.Context, id domain.SessionID) (*domain.CallSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.sessions[id]
	if !ok || entry.session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return entry.session.Clone(), nil
}

func (c *Channel) PublishAnswer(ctx context.Context, id domain.SessionID, answer *domain.SessionDescription) error {
	if err := answer.Validate(); err != nil {
		return err
	}
	if answer.Type != domain.SDPTypeAnswer {
		return fmt.Errorf("%w: expected answer, got %q", domain.ErrMalformedSignalingData, answer.Type)
	}

	c.mu.Lock()
	entry, ok := c.sessions[id]
	if !ok || entry.session == nil {
		c.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	if entry.session.Offer == nil {
		c.mu.Unlock()
		return domain.ErrOfferMissing
	}
	if entry.session.Answer != nil {
		c.mu.Unlock()
		return domain.ErrAnswerExists
	}
	entry.session.Answer = cloneDescription(answer)
	snapshot := entry.session.Clone()
	watchers := entry.sessionWatcherList()
	c.mu.Unlock()

	c.logger.Debug("answer published", zap.String("session_id", string(id)))
	notifySession(watchers, snapshot)
	return nil
}

func (c *Channel) WatchSession(ctx context.Context, id domain.SessionID, fn func(*domain.CallSession)) (ports.Unsubscribe, error) {
	if fn == nil {
		return nil, fmt.Errorf("watch callback must not be nil")
	}

	c.mu.Lock()
	entry, ok := c.sessions[id]
	if !ok {
		entry = newEntry()
		c.sessions[id] = entry
	}
	c.nextID++
	watchID := c.nextID
	entry.sessionWatchers[watchID] = fn
	var snapshot *domain.CallSession
	if entry.session != nil {
		snapshot = entry.session.Clone()
	}
	c.mu.Unlock()

	// replay current state so late subscribers see the session immediately
	if snapshot != nil {
		fn(snapshot)
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(entry.sessionWatchers, watchID)
			c.mu.Unlock()
		})
	}
	return unsub, nil
}

func (c *Channel) AppendCandidate(ctx context.Context, cand domain.IceCandidateRecord) error {
	if err := cand.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	entry, ok := c.sessions[cand.SessionID]
	if !ok || entry.session == nil {
		c.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	entry.candidates[cand.Side] = append(entry.candidates[cand.Side], cand)
	watchers := entry.candidateWatcherList(cand.Side)
	c.mu.Unlock()

	for _, w := range watchers {
		w(cand)
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

	c.mu.Lock()
	entry, ok := c.sessions[id]
	if !ok {
		entry = newEntry()
		c.sessions[id] = entry
	}
	c.nextID++
	watchID := c.nextID
	if entry.candidateWatchers[side] == nil {
		entry.candidateWatchers[side] = make(map[int]func(domain.IceCandidateRecord))
	}
	entry.candidateWatchers[side][watchID] = fn
	backlog := append([]domain.IceCandidateRecord(nil), entry.candidates[side]...)
	c.mu.Unlock()

	for _, cand := range backlog {
		fn(cand)
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			c.mu.Lock()
			if m := entry.candidateWatchers[side]; m != nil {
				delete(m, watchID)
			}
			c.mu.Unlock()
		})
	}
	return unsub, nil
}

// DeleteSession removes the session record and its candidates. Watchers stay
// registered; a later CreateSession with the same ID reuses them.
func (c *Channel) DeleteSession(ctx context.Context, id domain.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.sessions[id]
	if !ok || entry.session == nil {
		return domain.ErrSessionNotFound
	}
	entry.session = nil
	entry.candidates = make(map[domain.CandidateSide][]domain.IceCandidateRecord)
	return nil
}

// Sessions lists all live session records, newest first not guaranteed.
func (c *Channel) Sessions(ctx context.Context) []*domain.CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*domain.CallSession, 0, len(c.sessions))
	for _, entry := range c.sessions {
		if entry.session != nil {
			out = append(out, entry.session.Clone())
		}
	}
	return out
}

func newEntry() *sessionEntry {
	return &sessionEntry{
		candidates:        make(map[domain.CandidateSide][]domain.IceCandidateRecord),
		sessionWatchers:   make(map[int]func(*domain.CallSession)),
		candidateWatchers: make(map[domain.CandidateSide]map[int]func(domain.IceCandidateRecord)),
	}
}

func (e *sessionEntry) sessionWatcherList() []func(*domain.CallSession) {
	out := make([]func(*domain.CallSession), 0, len(e.sessionWatchers))
	for _, fn := range e.sessionWatchers {
		out = append(out, fn)
	}
	return out
}

func (e *sessionEntry) candidateWatcherList(side domain.CandidateSide) []func(domain.IceCandidateRecord) {
	m := e.candidateWatchers[side]
	out := make([]func(domain.IceCandidateRecord), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

func notifySession(watchers []func(*domain.CallSession), s *domain.CallSession) {
	for _, fn := range watchers {
		fn(s.Clone())
	}
}

func cloneDescription(d *domain.SessionDescription) *domain.SessionDescription {
	if d == nil {
		return nil
	}
	out := *d
	return &out
}
