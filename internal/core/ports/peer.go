package ports

import (
	"context"

	"aimon/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// Peer is the single-owner handle over one live peer connection. The raw
// connection never leaves the implementation; exactly one Peer exists per
// active session per participant.
type Peer interface {
	// AddTrack attaches a local outbound track before the offer is created.
	AddTrack(track webrtc.TrackLocal) error

	// CreateOffer generates the local offer and sets it as local description.
	CreateOffer(ctx context.Context) (*domain.SessionDescription, error)

	// CreateAnswer generates the local answer; the remote offer must already
	// be applied.
	CreateAnswer(ctx context.Context) (*domain.SessionDescription, error)

	// SetRemoteDescription applies the remote offer or answer. Candidates
	// buffered before this point are flushed afterwards.
	SetRemoteDescription(desc *domain.SessionDescription) error

	// RemoteDescriptionSet reports whether a remote description was applied.
	RemoteDescriptionSet() bool

	// AddRemoteCandidate applies a remote candidate. Candidates arriving
	// before the remote description is set are buffered, not rejected.
	// Duplicate candidates are tolerated.
	AddRemoteCandidate(cand domain.IceCandidateRecord) error

	// OnLocalCandidate registers the sink for locally discovered candidates.
	OnLocalCandidate(fn func(domain.IceCandidateRecord))

	// OnTrack registers the inbound track handler.
	OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver))

	// OnStateChange registers a connection-state observer.
	OnStateChange(fn func(webrtc.PeerConnectionState))

	ConnectionState() webrtc.PeerConnectionState

	// WriteRTCP sends RTCP packets toward the remote peer (keyframe requests).
	WriteRTCP(pkts []rtcp.Packet) error

	// Close is safe to call more than once and from any state.
	Close() error
}

// PeerFactory builds peers with the configured ICE servers and media engine.
type PeerFactory interface {
	NewPeer() (Peer, error)
}
