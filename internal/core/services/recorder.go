package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/pkg/utils"
)

// PacketSource yields RTP packets until the underlying track ends.
type PacketSource interface {
	ReadRTP() (*rtp.Packet, error)
}

// NewRemoteTrackSource adapts an inbound track to a PacketSource.
func NewRemoteTrackSource(track *webrtc.TrackRemote) PacketSource {
	return remoteTrackSource{track: track}
}

type remoteTrackSource struct {
	track *webrtc.TrackRemote
}

func (s remoteTrackSource) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := s.track.ReadRTP()
	return pkt, err
}

// ClipRecorderConfig holds the rolling clip parameters.
type ClipRecorderConfig struct {
	ClipLength time.Duration
	OutputDir  string
	BaseURL    string
}

// ClipRecorder writes inbound video into fixed-length IVF segments. Segment
// boundaries are wall-clock driven: a rollover happens every ClipLength
// regardless of how much media arrived. When a segment finalizes, its
// predecessor's file is removed, so only the newest complete clip and the
// one being written exist on disk.
type ClipRecorder struct {
	cfg     ClipRecorderConfig
	metrics ports.SignalMetrics
	logger  *zap.Logger

	onSegment  func(domain.RecordingSegment)
	onRollover func()

	stopOnce sync.Once
	stopped  chan struct{}
	started  chan struct{}
	done     chan struct{}
}

func NewClipRecorder(cfg ClipRecorderConfig, metrics ports.SignalMetrics, logger *zap.Logger) *ClipRecorder {
	return &ClipRecorder{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		stopped: make(chan struct{}),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnSegment registers the sink for finalized segments. Register before Record.
func (r *ClipRecorder) OnSegment(fn func(domain.RecordingSegment)) {
	r.onSegment = fn
}

// OnRollover registers a hook fired right after each rollover, before the new
// segment receives data. Callers use it to request a keyframe so the fresh
// segment starts decodable.
func (r *ClipRecorder) OnRollover(fn func()) {
	r.onRollover = fn
}

// Stop ends recording. The in-progress segment is finalized as truncated.
// Idempotent; returns once the record loop has exited.
func (r *ClipRecorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
	select {
	case <-r.started:
		<-r.done
	default:
	}
}

// Record consumes src until it ends, ctx is cancelled or Stop is called.
// Blocking; run it on its own goroutine.
func (r *ClipRecorder) Record(ctx context.Context, sessionID domain.SessionID, src PacketSource) error {
	close(r.started)
	defer close(r.done)

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	packets := make(chan *rtp.Packet, 64)
	readErr := make(chan error, 1)
	go func() {
		defer close(packets)
		for {
			pkt, err := src.ReadRTP()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case packets <- pkt:
			case <-r.stopped:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	seg, err := r.openSegment(sessionID, 0)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.cfg.ClipLength)
	defer ticker.Stop()

	logger := r.logger.With(zap.String("session_id", string(sessionID)))
	var prevPath string

	finish := func(truncated bool) error {
		final, err := seg.finalize(truncated)
		if err != nil {
			logger.Warn("failed to finalize segment", zap.Error(err))
			return err
		}
		if final != nil {
			r.emit(logger, *final, &prevPath)
		}
		return nil
	}

	for {
		select {
		case pkt, ok := <-packets:
			if !ok {
				_ = finish(true)
				select {
				case err := <-readErr:
					logger.Info("track ended", zap.Error(err))
				default:
				}
				return nil
			}
			if err := seg.write(pkt); err != nil {
				logger.Warn("failed to write packet", zap.Error(err))
			}

		case <-ticker.C:
			if err := finish(false); err == nil {
				next, err := r.openSegment(sessionID, seg.index+1)
				if err != nil {
					return err
				}
				seg = next
			}
			if r.onRollover != nil {
				r.onRollover()
			}

		case <-r.stopped:
			_ = finish(true)
			return nil

		case <-ctx.Done():
			_ = finish(true)
			return ctx.Err()
		}
	}
}

func (r *ClipRecorder) emit(logger *zap.Logger, final domain.RecordingSegment, prevPath *string) {
	if *prevPath != "" {
		if err := os.Remove(*prevPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove superseded segment", zap.Error(err))
		}
	}
	*prevPath = final.Path

	logger.Info("segment finalized",
		zap.Int("index", final.Index),
		zap.Duration("duration", final.Duration),
		zap.Int64("size", final.Size),
		zap.Bool("truncated", final.Truncated))

	if r.metrics != nil {
		r.metrics.SegmentFinalized(final)
	}
	if r.onSegment != nil {
		r.onSegment(final)
	}
}

func (r *ClipRecorder) openSegment(sessionID domain.SessionID, index int) (*segment, error) {
	start := utils.Now()
	name := fmt.Sprintf("%s_%03d_%s.ivf", sessionID, index, utils.SegmentTimestamp(start))
	path := filepath.Join(r.cfg.OutputDir, name)

	writer, err := ivfwriter.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment writer: %w", err)
	}

	return &segment{
		index:      index,
		startedAt:  start,
		path:       path,
		url:        r.cfg.BaseURL + "/" + name,
		clipLength: r.cfg.ClipLength,
		writer:     writer,
	}, nil
}

type segment struct {
	index      int
	startedAt  time.Time
	path       string
	url        string
	clipLength time.Duration
	writer     *ivfwriter.IVFWriter
	packets    int
}

func (s *segment) write(pkt *rtp.Packet) error {
	if err := s.writer.WriteRTP(pkt); err != nil {
		return err
	}
	s.packets++
	return nil
}

// finalize closes the writer and describes the segment. A segment that never
// received media is deleted and reported as nil.
func (s *segment) finalize(truncated bool) (*domain.RecordingSegment, error) {
	if err := s.writer.Close(); err != nil {
		return nil, err
	}

	if s.packets == 0 {
		_ = os.Remove(s.path)
		return nil, nil
	}

	duration := s.clipLength
	if truncated {
		duration = utils.Now().Sub(s.startedAt)
	}

	var size int64
	if info, err := os.Stat(s.path); err == nil {
		size = info.Size()
	}

	return &domain.RecordingSegment{
		Index:     s.index,
		StartedAt: s.startedAt,
		Duration:  duration,
		Path:      s.path,
		URL:       s.url,
		Size:      size,
		Truncated: truncated,
	}, nil
}
