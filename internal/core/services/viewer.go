package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/pkg/utils"
)

// ViewerService runs the consuming side of a call: it answers an existing
// offer and receives the streamer's media.
type ViewerService struct {
	channel ports.SignalingChannel
	peers   ports.PeerFactory
	metrics ports.SignalMetrics
	logger  *zap.Logger
}

func NewViewerService(
	channel ports.SignalingChannel,
	peers ports.PeerFactory,
	metrics ports.SignalMetrics,
	logger *zap.Logger,
) *ViewerService {
	return &ViewerService{
		channel: channel,
		peers:   peers,
		metrics: metrics,
		logger:  logger,
	}
}

// ViewerSession is one live viewing session.
type ViewerSession struct {
	ID        domain.SessionID
	UserID    domain.UserID
	peer      ports.Peer
	lifecycle *LifecycleCoordinator
	metrics   ports.SignalMetrics
	logger    *zap.Logger
	startedAt time.Time

	mu      sync.Mutex
	state   SessionState
	onState func(SessionState)
	lastErr error

	endOnce sync.Once
	counted bool
}

// TrackHandler receives each inbound remote track once it starts flowing.
type TrackHandler func(*webrtc.TrackRemote, *webrtc.RTPReceiver)

// Join answers the session's offer. The ID is validated and the session
// looked up before any resource is allocated, so joining with a bad ID or a
// nonexistent or already-answered call leaks nothing.
func (s *ViewerService) Join(ctx context.Context, id domain.SessionID, userID domain.UserID, onTrack TrackHandler) (*ViewerSession, error) {
	if id == "" {
		return nil, domain.ErrInvalidSessionID
	}

	record, err := s.channel.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Offer == nil {
		return nil, domain.ErrOfferMissing
	}
	if record.Answered() {
		return nil, domain.ErrAnswerExists
	}

	sess := &ViewerSession{
		ID:        id,
		UserID:    userID,
		lifecycle: NewLifecycleCoordinator(s.logger),
		metrics:   s.metrics,
		logger:    s.logger.With(zap.String("session_id", string(id)), zap.String("role", "viewer")),
		startedAt: utils.Now(),
		state:     StateIdle,
	}

	if err := s.join(ctx, sess, record, onTrack); err != nil {
		sess.setErr(err)
		sess.fail()
		return nil, err
	}
	return sess, nil
}

func (s *ViewerService) join(ctx context.Context, sess *ViewerSession, record *domain.CallSession, onTrack TrackHandler) error {
	peer, err := s.peers.NewPeer()
	if err != nil {
		return fmt.Errorf("failed to create peer: %w", err)
	}
	sess.peer = peer
	sess.lifecycle.Register("peer", func() { _ = peer.Close() })

	if onTrack != nil {
		peer.OnTrack(onTrack)
	}

	peer.OnLocalCandidate(func(cand domain.IceCandidateRecord) {
		cand.SessionID = sess.ID
		cand.Side = domain.SideAnswer
		if err := s.channel.AppendCandidate(context.Background(), cand); err != nil {
			sess.logger.Warn("failed to publish local candidate", zap.Error(err))
			if s.metrics != nil {
				s.metrics.CandidateDropped(domain.SideAnswer)
			}
			return
		}
		if s.metrics != nil {
			s.metrics.CandidateForwarded(domain.SideAnswer)
		}
	})

	peer.OnStateChange(func(st webrtc.PeerConnectionState) {
		sess.handleConnectionState(st)
	})

	sess.setState(StateSignaling)

	if err := peer.SetRemoteDescription(record.Offer); err != nil {
		return fmt.Errorf("failed to apply offer: %w", err)
	}

	unsubCands, err := s.channel.WatchCandidates(ctx, sess.ID, domain.SideOffer, func(cand domain.IceCandidateRecord) {
		if err := peer.AddRemoteCandidate(cand); err != nil {
			sess.logger.Warn("failed to apply remote candidate", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch candidates: %w", err)
	}
	sess.lifecycle.Register("candidate watch", unsubCands)

	answer, err := peer.CreateAnswer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	answer.OriginatorID = sess.UserID

	// first answer wins; losing the race tears this session down
	if err := s.channel.PublishAnswer(ctx, sess.ID, answer); err != nil {
		return fmt.Errorf("failed to publish answer: %w", err)
	}

	sess.setState(StateConnecting)

	if s.metrics != nil {
		s.metrics.SessionStarted()
		sess.counted = true
	}
	sess.logger.Info("viewer session joined")
	return nil
}

// RequestKeyFrame sends a PLI for the given inbound track so the next frame
// arrives as a decodable keyframe.
func (sess *ViewerSession) RequestKeyFrame(ssrc uint32) error {
	return sess.peer.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: ssrc},
	})
}

func (sess *ViewerSession) handleConnectionState(st webrtc.PeerConnectionState) {
	sess.logger.Debug("connection state changed", zap.String("state", st.String()))
	switch st {
	case webrtc.PeerConnectionStateConnected:
		sess.setState(StateConnected)
	case webrtc.PeerConnectionStateDisconnected:
		// no ICE restart is attempted, so a disconnected transport never
		// recovers; stop watching and free the peer
		sess.disconnect()
	case webrtc.PeerConnectionStateFailed:
		sess.setErr(domain.ErrConnectionFailed)
		sess.fail()
	case webrtc.PeerConnectionStateClosed:
		sess.Close()
	}
}

func (sess *ViewerSession) setErr(err error) {
	sess.mu.Lock()
	if sess.lastErr == nil {
		sess.lastErr = err
	}
	sess.mu.Unlock()
}

// Err reports the first fatal error the session hit, nil while healthy.
func (sess *ViewerSession) Err() error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.lastErr
}

func (sess *ViewerSession) setState(st SessionState) {
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

func (sess *ViewerSession) State() SessionState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

func (sess *ViewerSession) OnStateChange(fn func(SessionState)) {
	sess.mu.Lock()
	sess.onState = fn
	sess.mu.Unlock()
}

func (sess *ViewerSession) fail() {
	sess.setState(StateFailed)
	sess.teardown()
}

func (sess *ViewerSession) disconnect() {
	sess.setState(StateDisconnected)
	sess.teardown()
}

// Close ends the session. Idempotent.
func (sess *ViewerSession) Close() {
	sess.setState(StateClosed)
	sess.teardown()
}

func (sess *ViewerSession) teardown() {
	sess.endOnce.Do(func() {
		sess.lifecycle.Shutdown()
		if sess.metrics != nil && sess.counted {
			sess.metrics.SessionEnded(utils.Now().Sub(sess.startedAt))
		}
		sess.logger.Info("viewer session ended",
			zap.Duration("duration", utils.Now().Sub(sess.startedAt)))
	})
}
