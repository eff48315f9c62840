package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/pkg/config"
)

// RTPSource exposes configured UDP RTP inputs as capture devices. Each
// acquired stream binds the input's UDP port and pumps packets into a local
// track until released.
type RTPSource struct {
	logger *zap.Logger
	mtu    int

	mu     sync.Mutex
	inputs map[string]inputConfig
	order  []string
	inUse  map[string]bool
}

type inputConfig struct {
	id       string
	label    string
	address  string
	mimeType string
}

func NewRTPSource(cfg *config.Config, logger *zap.Logger) *RTPSource {
	s := &RTPSource{
		logger: logger,
		mtu:    cfg.Media.MTU,
		inputs: make(map[string]inputConfig),
		inUse:  make(map[string]bool),
	}
	for _, in := range cfg.Media.Inputs {
		mime := in.MimeType
		if mime == "" {
			mime = webrtc.MimeTypeVP8
		}
		s.inputs[in.ID] = inputConfig{
			id:       in.ID,
			label:    in.Label,
			address:  in.Address,
			mimeType: mime,
		}
		s.order = append(s.order, in.ID)
	}
	return s
}

var _ ports.MediaSource = (*RTPSource)(nil)

func (s *RTPSource) ListVideoInputs(ctx context.Context) ([]domain.VideoInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.VideoInput, 0, len(s.order))
	for _, id := range s.order {
		in := s.inputs[id]
		out = append(out, domain.VideoInput{DeviceID: in.id, Label: in.label})
	}
	return out, nil
}

func (s *RTPSource) Acquire(ctx context.Context, deviceID string) (ports.MediaStream, error) {
	s.mu.Lock()
	if len(s.inputs) == 0 {
		s.mu.Unlock()
		return nil, domain.ErrNoMedia
	}
	in, ok := s.inputs[deviceID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: unknown device %q", domain.ErrDeviceUnavailable, deviceID)
	}
	if s.inUse[deviceID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: device %q already acquired", domain.ErrDeviceUnavailable, deviceID)
	}
	s.inUse[deviceID] = true
	s.mu.Unlock()

	stream, err := s.openStream(in)
	if err != nil {
		s.mu.Lock()
		delete(s.inUse, deviceID)
		s.mu.Unlock()
		return nil, err
	}
	return stream, nil
}

func (s *RTPSource) openStream(in inputConfig) (*rtpStream, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", in.address)
	if err != nil {
		return nil, fmt.Errorf("%w: bad address %q: %v", domain.ErrDeviceUnavailable, in.address, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: in.mimeType},
		"video", in.id,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create local track: %w", err)
	}

	stream := &rtpStream{
		source:   s,
		deviceID: in.id,
		conn:     conn,
		track:    track,
		logger:   s.logger.With(zap.String("device_id", in.id)),
		done:     make(chan struct{}),
	}
	go stream.pump(s.mtu)

	s.logger.Info("media stream acquired",
		zap.String("device_id", in.id),
		zap.String("address", in.address))
	return stream, nil
}

func (s *RTPSource) Release(stream ports.MediaStream) {
	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		s.logger.Warn("failed to close media stream", zap.Error(err))
	}
}

func (s *RTPSource) release(deviceID string) {
	s.mu.Lock()
	delete(s.inUse, deviceID)
	s.mu.Unlock()
}

// rtpStream is one bound UDP socket feeding one local video track.
type rtpStream struct {
	source   *RTPSource
	deviceID string
	conn     *net.UDPConn
	track    *webrtc.TrackLocalStaticRTP
	logger   *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

var _ ports.MediaStream = (*rtpStream)(nil)

func (st *rtpStream) DeviceID() string {
	return st.deviceID
}

func (st *rtpStream) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{st.track}
}

func (st *rtpStream) Close() error {
	st.closeOnce.Do(func() {
		close(st.done)
		_ = st.conn.Close()
		st.source.release(st.deviceID)
		st.logger.Info("media stream released")
	})
	return nil
}

func (st *rtpStream) pump(mtu int) {
	buf := make([]byte, mtu)
	for {
		// short deadline keeps the shutdown check responsive
		_ = st.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

		n, _, err := st.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-st.done:
					return
				default:
					continue
				}
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			st.logger.Warn("udp read error", zap.Error(err))
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			// not RTP, skip
			continue
		}
		if err := st.track.WriteRTP(&pkt); err != nil {
			st.logger.Warn("failed to write to track", zap.Error(err))
			return
		}
	}
}
