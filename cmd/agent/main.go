package main

import (
	"context"
	"flag"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/internal/core/services"
	"aimon/internal/infrastructure/media"
	"aimon/internal/infrastructure/monitoring"
	"aimon/internal/infrastructure/relay"
	"aimon/internal/infrastructure/signaling"
	webrtcinfra "aimon/internal/infrastructure/webrtc"
	"aimon/pkg/config"
	"aimon/pkg/logger"
	"aimon/pkg/utils"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		role       = flag.String("role", "streamer", "peer role: streamer or viewer")
		sessionID  = flag.String("session", "", "session id (defaults to user id for streamer, required for viewer)")
		userID     = flag.String("user", "", "user id (defaults to a generated id)")
		deviceID   = flag.String("device", "", "capture device id (streamer role)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("invalid configuration: %v", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()

	uid := domain.UserID(*userID)
	if uid == "" {
		uid = domain.UserID("agent-" + utils.GenerateSessionID())
	}

	signalingFactory, err := signaling.NewFactory(cfg, log)
	if err != nil {
		log.Fatal("failed to create signaling factory", zap.Error(err))
	}
	defer signalingFactory.Close()
	channel := signalingFactory.CreateChannel()

	peerFactory, err := webrtcinfra.NewFactory(cfg, log)
	if err != nil {
		log.Fatal("failed to create peer factory", zap.Error(err))
	}

	var metrics ports.SignalMetrics
	if cfg.Monitoring.PrometheusEnabled {
		collector := monitoring.NewPrometheusCollector()
		metrics = collector

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.Server.Address, mux); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch *role {
	case "streamer":
		runStreamer(ctx, sigChan, cfg, channel, peerFactory, metrics, uid, *sessionID, *deviceID, log)
	case "viewer":
		if *sessionID == "" {
			log.Fatal("viewer role requires -session")
		}
		runViewer(ctx, sigChan, cfg, channel, peerFactory, metrics, uid, *sessionID, log)
	default:
		log.Fatal("unknown role", zap.String("role", *role))
	}

	log.Info("agent stopped")
}

func runStreamer(
	ctx context.Context,
	sigChan chan os.Signal,
	cfg *config.Config,
	channel ports.SignalingChannel,
	peers ports.PeerFactory,
	metrics ports.SignalMetrics,
	uid domain.UserID,
	sessionID, deviceID string,
	log *zap.Logger,
) {
	source := media.NewRTPSource(cfg, log)

	var relayTrigger ports.RelayTrigger
	if cfg.Relay.Enabled {
		relayTrigger = relay.NewClient(cfg, log)
	}

	svc := services.NewStreamerService(channel, peers, source, relayTrigger, metrics, log)

	sess, err := svc.Start(ctx, domain.SessionID(sessionID), uid, deviceID)
	if err != nil {
		log.Fatal("failed to start streaming session", zap.Error(err))
	}
	defer sess.Close()

	sess.OnStateChange(func(st services.SessionState) {
		log.Info("session state changed", zap.String("state", st.String()))
	})

	log.Info("streaming",
		zap.String("session_id", string(sess.ID)),
		zap.String("user_id", string(uid)))

	<-sigChan
	log.Info("shutting down streamer")
}

func runViewer(
	ctx context.Context,
	sigChan chan os.Signal,
	cfg *config.Config,
	channel ports.SignalingChannel,
	peers ports.PeerFactory,
	metrics ports.SignalMetrics,
	uid domain.UserID,
	sessionID string,
	log *zap.Logger,
) {
	svc := services.NewViewerService(channel, peers, metrics, log)

	recorderCfg := services.ClipRecorderConfig{
		ClipLength: cfg.Recorder.ClipLength,
		OutputDir:  cfg.Recorder.OutputDir,
		BaseURL:    cfg.Recorder.BaseURL,
	}

	var (
		mu        sync.Mutex
		sess      *services.ViewerSession
		recorders []*services.ClipRecorder
	)

	onTrack := func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}

		rec := services.NewClipRecorder(recorderCfg, metrics, log)
		ssrc := uint32(track.SSRC())
		rec.OnRollover(func() {
			mu.Lock()
			s := sess
			mu.Unlock()
			if s == nil {
				return
			}
			// a fresh keyframe keeps each clip independently decodable
			if err := s.RequestKeyFrame(ssrc); err != nil {
				log.Debug("keyframe request failed", zap.Error(err))
			}
		})

		mu.Lock()
		recorders = append(recorders, rec)
		mu.Unlock()

		go func() {
			if err := rec.Record(ctx, domain.SessionID(sessionID), services.NewRemoteTrackSource(track)); err != nil {
				log.Warn("recording ended with error", zap.Error(err))
			}
		}()
	}

	s, err := svc.Join(ctx, domain.SessionID(sessionID), uid, onTrack)
	if err != nil {
		log.Fatal("failed to join session", zap.Error(err))
	}

	mu.Lock()
	sess = s
	mu.Unlock()

	s.OnStateChange(func(st services.SessionState) {
		log.Info("session state changed", zap.String("state", st.String()))
		if st.Terminal() {
			mu.Lock()
			ended := recorders
			recorders = nil
			mu.Unlock()
			for _, rec := range ended {
				rec.Stop()
			}
		}
	})

	log.Info("viewing",
		zap.String("session_id", sessionID),
		zap.String("user_id", string(uid)))

	<-sigChan
	log.Info("shutting down viewer")

	mu.Lock()
	for _, rec := range recorders {
		rec.Stop()
	}
	mu.Unlock()
	s.Close()
}
