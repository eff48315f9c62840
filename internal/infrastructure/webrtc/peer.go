package webrtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/pkg/config"
)

// Factory builds peers from a shared pion API instance so every connection
// carries the same codecs, interceptors and port range.
type Factory struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	logger     *zap.Logger
}

func NewFactory(cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.WebRTC.PortRange.Min > 0 && cfg.WebRTC.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.WebRTC.PortRange.Min, cfg.WebRTC.PortRange.Max); err != nil {
			return nil, fmt.Errorf("failed to set udp port range: %w", err)
		}
	}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		iceServers = append(iceServers, server)
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun1.l.google.com:19302", "stun:stun2.l.google.com:19302"}},
		}
	}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(settingEngine),
		),
		iceServers: iceServers,
		logger:     logger,
	}, nil
}

var _ ports.PeerFactory = (*Factory)(nil)

func (f *Factory) NewPeer() (ports.Peer, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: f.iceServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return &peer{pc: pc, logger: f.logger}, nil
}

// peer wraps one *webrtc.PeerConnection and owns the candidate buffering
// required by trickle ICE: remote candidates arriving before the remote
// description are held and flushed once it lands.
type peer struct {
	pc     *webrtc.PeerConnection
	logger *zap.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []domain.IceCandidateRecord
	closed    bool

	closeOnce sync.Once
	closeErr  error
}

var _ ports.Peer = (*peer)(nil)

func (p *peer) AddTrack(track webrtc.TrackLocal) error {
	if _, err := p.pc.AddTrack(track); err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}
	return nil
}

func (p *peer) CreateOffer(ctx context.Context) (*domain.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	return &domain.SessionDescription{
		Type: domain.SDPTypeOffer,
		SDP:  offer.SDP,
	}, nil
}

func (p *peer) CreateAnswer(ctx context.Context) (*domain.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	return &domain.SessionDescription{
		Type: domain.SDPTypeAnswer,
		SDP:  answer.SDP,
	}, nil
}

func (p *peer) SetRemoteDescription(desc *domain.SessionDescription) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	sdpType := webrtc.SDPTypeOffer
	if desc.Type == domain.SDPTypeAnswer {
		sdpType = webrtc.SDPTypeAnswer
	}
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: sdpType,
		SDP:  desc.SDP,
	}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, cand := range pending {
		if err := p.applyCandidate(cand); err != nil {
			p.logger.Warn("failed to apply buffered candidate", zap.Error(err))
		}
	}
	return nil
}

func (p *peer) RemoteDescriptionSet() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteSet
}

func (p *peer) AddRemoteCandidate(cand domain.IceCandidateRecord) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.ErrPeerClosed
	}
	if !p.remoteSet {
		p.pending = append(p.pending, cand)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.applyCandidate(cand)
}

func (p *peer) applyCandidate(cand domain.IceCandidateRecord) error {
	sdpMid := cand.SDPMid
	mlineIndex := cand.SDPMLineIndex
	if err := p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        &sdpMid,
		SDPMLineIndex: &mlineIndex,
	}); err != nil {
		return fmt.Errorf("failed to add ice candidate: %w", err)
	}
	return nil
}

func (p *peer) OnLocalCandidate(fn func(domain.IceCandidateRecord)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// end of gathering
			return
		}
		init := c.ToJSON()
		rec := domain.IceCandidateRecord{Candidate: init.Candidate}
		if init.SDPMid != nil {
			rec.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			rec.SDPMLineIndex = *init.SDPMLineIndex
		}
		fn(rec)
	})
}

func (p *peer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.pc.OnTrack(fn)
}

func (p *peer) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

func (p *peer) ConnectionState() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

func (p *peer) WriteRTCP(pkts []rtcp.Packet) error {
	return p.pc.WriteRTCP(pkts)
}

func (p *peer) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.pending = nil
		p.mu.Unlock()
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}
