package ports

import (
	"context"

	"aimon/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// MediaStream is an acquired local capture. It is shared by reference with
// the peer connection; only the MediaSource that produced it may stop it.
type MediaStream interface {
	DeviceID() string
	Tracks() []webrtc.TrackLocal

	// Close stops every track. Idempotent.
	Close() error
}

// MediaSource enumerates capture devices and acquires local media.
type MediaSource interface {
	// ListVideoInputs returns configured inputs in order. An empty slice,
	// not an error, when nothing is available yet.
	ListVideoInputs(ctx context.Context) ([]domain.VideoInput, error)

	// Acquire opens the device and starts capture. Fails with
	// domain.ErrNoMedia when the source has nothing to capture from,
	// domain.ErrDeviceUnavailable or domain.ErrPermissionDenied otherwise.
	Acquire(ctx context.Context, deviceID string) (MediaStream, error)

	// Release stops the stream. Safe on nil and already-released streams.
	Release(s MediaStream)
}
