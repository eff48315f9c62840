package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/pkg/utils"
)

// StreamerService runs the publishing side of a call: it captures local
// media, writes the offer to the signaling channel and waits for a viewer
// to answer.
type StreamerService struct {
	channel ports.SignalingChannel
	peers   ports.PeerFactory
	media   ports.MediaSource
	relay   ports.RelayTrigger
	metrics ports.SignalMetrics
	logger  *zap.Logger
}

func NewStreamerService(
	channel ports.SignalingChannel,
	peers ports.PeerFactory,
	media ports.MediaSource,
	relay ports.RelayTrigger,
	metrics ports.SignalMetrics,
	logger *zap.Logger,
) *StreamerService {
	return &StreamerService{
		channel: channel,
		peers:   peers,
		media:   media,
		relay:   relay,
		metrics: metrics,
		logger:  logger,
	}
}

// StreamerSession is one live publishing session. Close tears everything
// down exactly once regardless of how far startup got.
type StreamerSession struct {
	ID        domain.SessionID
	UserID    domain.UserID
	peer      ports.Peer
	stream    ports.MediaStream
	lifecycle *LifecycleCoordinator
	metrics   ports.SignalMetrics
	logger    *zap.Logger
	startedAt time.Time

	mu         sync.Mutex
	state      SessionState
	onState    func(SessionState)
	lastErr    error
	published  bool
	earlyCands []domain.IceCandidateRecord

	applyAnswer sync.Once
	endOnce     sync.Once
	counted     bool
}

// Start publishes a new session. The session ID defaults to the user ID so a
// user's dashboard stream is addressable without extra lookup; pass a
// distinct ID to run several concurrent sessions.
func (s *StreamerService) Start(ctx context.Context, id domain.SessionID, userID domain.UserID, deviceID string) (*StreamerSession, error) {
	if id == "" {
		id = domain.SessionID(userID)
	}
	if id == "" {
		return nil, domain.ErrInvalidSessionID
	}

	sess := &StreamerSession{
		ID:        id,
		UserID:    userID,
		lifecycle: NewLifecycleCoordinator(s.logger),
		metrics:   s.metrics,
		logger:    s.logger.With(zap.String("session_id", string(id)), zap.String("role", "streamer")),
		startedAt: utils.Now(),
		state:     StateIdle,
	}

	if err := s.start(ctx, sess, deviceID); err != nil {
		sess.setErr(err)
		sess.fail()
		return nil, err
	}
	return sess, nil
}

func (s *StreamerService) start(ctx context.Context, sess *StreamerSession, deviceID string) error {
	sess.setState(StateAcquiringMedia)

	stream, err := s.media.Acquire(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to acquire media: %w", err)
	}
	sess.stream = stream
	sess.lifecycle.Register("media", func() { s.media.Release(stream) })

	peer, err := s.peers.NewPeer()
	if err != nil {
		return fmt.Errorf("failed to create peer: %w", err)
	}
	sess.peer = peer
	sess.lifecycle.Register("peer", func() { _ = peer.Close() })

	for _, track := range stream.Tracks() {
		if err := peer.AddTrack(track); err != nil {
			return err
		}
	}

	// gathering starts with the local offer, before the session record
	// exists; candidates found in that window are held and flushed once
	// the record is written
	peer.OnLocalCandidate(func(cand domain.IceCandidateRecord) {
		cand.SessionID = sess.ID
		cand.Side = domain.SideOffer
		sess.mu.Lock()
		if !sess.published {
			sess.earlyCands = append(sess.earlyCands, cand)
			sess.mu.Unlock()
			return
		}
		sess.mu.Unlock()
		s.forwardLocalCandidate(sess, cand)
	})

	peer.OnStateChange(func(st webrtc.PeerConnectionState) {
		sess.handleConnectionState(st)
	})

	sess.setState(StateSignaling)

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	offer.OriginatorID = sess.UserID

	if err := s.channel.CreateSession(ctx, sess.ID, offer); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	sess.mu.Lock()
	sess.published = true
	early := sess.earlyCands
	sess.earlyCands = nil
	sess.mu.Unlock()
	for _, cand := range early {
		s.forwardLocalCandidate(sess, cand)
	}

	unsubSession, err := s.channel.WatchSession(ctx, sess.ID, func(cs *domain.CallSession) {
		sess.applyRemoteAnswer(cs)
	})
	if err != nil {
		return fmt.Errorf("failed to watch session: %w", err)
	}
	sess.lifecycle.Register("session watch", unsubSession)

	unsubCands, err := s.channel.WatchCandidates(ctx, sess.ID, domain.SideAnswer, func(cand domain.IceCandidateRecord) {
		if err := peer.AddRemoteCandidate(cand); err != nil {
			sess.logger.Warn("failed to apply remote candidate", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch candidates: %w", err)
	}
	sess.lifecycle.Register("candidate watch", unsubCands)

	sess.setState(StateConnecting)

	if s.relay != nil {
		// transcoder start is advisory, the call works without it
		if err := s.relay.StartTransceiver(ctx, sess.UserID); err != nil {
			sess.logger.Warn("failed to start relay transceiver", zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.SessionStarted()
		sess.counted = true
	}
	sess.logger.Info("streamer session started", zap.String("device_id", deviceID))
	return nil
}

// forwardLocalCandidate is best effort: a dropped candidate degrades
// connectivity but must not kill the session.
func (s *StreamerService) forwardLocalCandidate(sess *StreamerSession, cand domain.IceCandidateRecord) {
	if err := s.channel.AppendCandidate(context.Background(), cand); err != nil {
		sess.logger.Warn("failed to publish local candidate", zap.Error(err))
		if s.metrics != nil {
			s.metrics.CandidateDropped(domain.SideOffer)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.CandidateForwarded(domain.SideOffer)
	}
}

// applyRemoteAnswer applies the first answer that appears on the session
// record. Later updates and duplicate replays are ignored.
func (sess *StreamerSession) applyRemoteAnswer(cs *domain.CallSession) {
	if !cs.Answered() {
		return
	}
	sess.applyAnswer.Do(func() {
		if err := sess.peer.SetRemoteDescription(cs.Answer); err != nil {
			sess.logger.Error("failed to apply answer", zap.Error(err))
			sess.setErr(err)
			return
		}
		sess.logger.Info("answer applied",
			zap.String("viewer_id", string(cs.Answer.OriginatorID)))
	})
}

func (sess *StreamerSession) handleConnectionState(st webrtc.PeerConnectionState) {
	sess.logger.Debug("connection state changed", zap.String("state", st.String()))
	switch st {
	case webrtc.PeerConnectionStateConnected:
		sess.setState(StateConnected)
	case webrtc.PeerConnectionStateDisconnected:
		// no ICE restart is attempted, so a disconnected transport never
		// recovers; release media instead of holding the device
		sess.disconnect()
	case webrtc.PeerConnectionStateFailed:
		sess.setErr(domain.ErrConnectionFailed)
		sess.fail()
	case webrtc.PeerConnectionStateClosed:
		sess.Close()
	}
}

func (sess *StreamerSession) setErr(err error) {
	sess.mu.Lock()
	if sess.lastErr == nil {
		sess.lastErr = err
	}
	sess.mu.Unlock()
}

// Err reports the first fatal error the session hit, nil while healthy.
func (sess *StreamerSession) Err() error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.lastErr
}

func (sess *StreamerSession) setState(st SessionState) {
	sess.mu.Lock()
	if sess.state.Terminal() {
		sess.mu.Unlock()
		return
	}
	sess.state = st
	observer := sess.onState
	sess.mu.Unlock()

	if observer != nil {
		observer(st)
	}
}

// State returns the current session state.
func (sess *StreamerSession) State() SessionState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

// OnStateChange registers a state observer. Call before the session makes
// progress; there is no replay of past transitions.
func (sess *StreamerSession) OnStateChange(fn func(SessionState)) {
	sess.mu.Lock()
	sess.onState = fn
	sess.mu.Unlock()
}

func (sess *StreamerSession) fail() {
	sess.setState(StateFailed)
	sess.teardown()
}

func (sess *StreamerSession) disconnect() {
	sess.setState(StateDisconnected)
	sess.teardown()
}

// Close ends the session and releases every held resource. Idempotent.
func (sess *StreamerSession) Close() {
	sess.setState(StateClosed)
	sess.teardown()
}

func (sess *StreamerSession) teardown() {
	sess.endOnce.Do(func() {
		sess.lifecycle.Shutdown()
		if sess.metrics != nil && sess.counted {
			sess.metrics.SessionEnded(utils.Now().Sub(sess.startedAt))
		}
		sess.logger.Info("streamer session ended",
			zap.Duration("duration", utils.Now().Sub(sess.startedAt)))
	})
}
