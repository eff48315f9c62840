package services

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
)

// fakePeer implements ports.Peer without touching the network.
type fakePeer struct {
	mu sync.Mutex

	tracks     []webrtc.TrackLocal
	remoteDesc *domain.SessionDescription
	remoteSet  bool
	pending    []domain.IceCandidateRecord
	applied    []domain.IceCandidateRecord
	closed     bool
	closeCount int

	localCandidateFn func(domain.IceCandidateRecord)
	trackFn          func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	stateFn          func(webrtc.PeerConnectionState)

	offerErr      error
	answerErr     error
	gatherOnOffer []string
	rtcpSent      []rtcp.Packet
}

func (p *fakePeer) AddTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePeer) CreateOffer(ctx context.Context) (*domain.SessionDescription, error) {
	if p.offerErr != nil {
		return nil, p.offerErr
	}
	// real peers start gathering as soon as the local offer is set
	p.mu.Lock()
	fn := p.localCandidateFn
	gather := p.gatherOnOffer
	p.mu.Unlock()
	if fn != nil {
		for _, cand := range gather {
			fn(domain.IceCandidateRecord{Candidate: cand})
		}
	}
	return &domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 fake-offer"}, nil
}

func (p *fakePeer) CreateAnswer(ctx context.Context) (*domain.SessionDescription, error) {
	if p.answerErr != nil {
		return nil, p.answerErr
	}
	return &domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0 fake-answer"}, nil
}

func (p *fakePeer) SetRemoteDescription(desc *domain.SessionDescription) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.remoteDesc = desc
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.applied = append(p.applied, pending...)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) RemoteDescriptionSet() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteSet
}

func (p *fakePeer) AddRemoteCandidate(cand domain.IceCandidateRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.ErrPeerClosed
	}
	if !p.remoteSet {
		p.pending = append(p.pending, cand)
		return nil
	}
	p.applied = append(p.applied, cand)
	return nil
}

func (p *fakePeer) OnLocalCandidate(fn func(domain.IceCandidateRecord)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.localCandidateFn = fn
}

func (p *fakePeer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trackFn = fn
}

func (p *fakePeer) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateFn = fn
}

func (p *fakePeer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return webrtc.PeerConnectionStateClosed
	}
	return webrtc.PeerConnectionStateNew
}

func (p *fakePeer) WriteRTCP(pkts []rtcp.Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rtcpSent = append(p.rtcpSent, pkts...)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCount++
	return nil
}

// emitLocalCandidate simulates ICE gathering discovering a candidate.
func (p *fakePeer) emitLocalCandidate(candidate string) {
	p.mu.Lock()
	fn := p.localCandidateFn
	p.mu.Unlock()
	if fn != nil {
		fn(domain.IceCandidateRecord{Candidate: candidate})
	}
}

// setConnectionState simulates a transport state transition.
func (p *fakePeer) setConnectionState(st webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.stateFn
	p.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (p *fakePeer) appliedCandidates() []domain.IceCandidateRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.IceCandidateRecord(nil), p.applied...)
}

func (p *fakePeer) pendingCandidates() []domain.IceCandidateRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.IceCandidateRecord(nil), p.pending...)
}

type fakePeerFactory struct {
	mu            sync.Mutex
	peers         []*fakePeer
	gatherOnOffer []string
	err           error
}

func (f *fakePeerFactory) NewPeer() (ports.Peer, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePeer{gatherOnOffer: f.gatherOnOffer}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakePeerFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

// fakeMediaStream and fakeMediaSource implement the media ports.
type fakeMediaStream struct {
	deviceID string
	closed   bool
	mu       sync.Mutex
}

func (s *fakeMediaStream) DeviceID() string            { return s.deviceID }
func (s *fakeMediaStream) Tracks() []webrtc.TrackLocal { return nil }
func (s *fakeMediaStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeMediaStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMediaSource struct {
	mu         sync.Mutex
	inputs     []domain.VideoInput
	acquireErr error
	streams    []*fakeMediaStream
	released   int
}

func (m *fakeMediaSource) ListVideoInputs(ctx context.Context) ([]domain.VideoInput, error) {
	return m.inputs, nil
}

func (m *fakeMediaSource) Acquire(ctx context.Context, deviceID string) (ports.MediaStream, error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &fakeMediaStream{deviceID: deviceID}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMediaSource) Release(s ports.MediaStream) {
	if s == nil {
		return
	}
	_ = s.Close()
	m.mu.Lock()
	m.released++
	m.mu.Unlock()
}

type fakeRelay struct {
	mu    sync.Mutex
	calls []domain.UserID
	err   error
}

func (r *fakeRelay) StartTransceiver(ctx context.Context, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID)
	return r.err
}

type fakeMetrics struct {
	mu        sync.Mutex
	started   int
	ended     int
	forwarded map[domain.CandidateSide]int
	dropped   map[domain.CandidateSide]int
	segments  []domain.RecordingSegment
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		forwarded: make(map[domain.CandidateSide]int),
		dropped:   make(map[domain.CandidateSide]int),
	}
}

func (m *fakeMetrics) SessionStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *fakeMetrics) SessionEnded(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended++
}

func (m *fakeMetrics) CandidateForwarded(side domain.CandidateSide) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forwarded[side]++
}

func (m *fakeMetrics) CandidateDropped(side domain.CandidateSide) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[side]++
}

func (m *fakeMetrics) SegmentFinalized(seg domain.RecordingSegment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = append(m.segments, seg)
}
