package services

import (
	"context"
	"testing"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"aimon/internal/core/domain"
	"aimon/internal/infrastructure/signaling/memory"
)

type viewerEnv struct {
	channel *memory.Channel
	peers   *fakePeerFactory
	metrics *fakeMetrics
	svc     *ViewerService
}

func newViewerEnv(t *testing.T) *viewerEnv {
	env := &viewerEnv{
		channel: memory.NewChannel(zaptest.NewLogger(t)),
		peers:   &fakePeerFactory{},
		metrics: newFakeMetrics(),
	}
	env.svc = NewViewerService(env.channel, env.peers, env.metrics, zaptest.NewLogger(t))
	return env
}

func (env *viewerEnv) createOffer(t *testing.T, id domain.SessionID) {
	require.NoError(t, env.channel.CreateSession(context.Background(), id, &domain.SessionDescription{
		Type: domain.SDPTypeOffer, SDP: "v=0 streamer-offer", OriginatorID: "alice",
	}))
}

func TestViewerJoinPublishesAnswer(t *testing.T) {
	env := newViewerEnv(t)
	ctx := context.Background()
	env.createOffer(t, "call-1")

	sess, err := env.svc.Join(ctx, "call-1", "bob", nil)
	require.NoError(t, err)
	defer sess.Close()

	record, err := env.channel.GetSession(ctx, "call-1")
	require.NoError(t, err)
	require.True(t, record.Answered())
	assert.Equal(t, "v=0 fake-answer", record.Answer.SDP)
	assert.Equal(t, domain.UserID("bob"), record.Answer.OriginatorID)

	peer := env.peers.last()
	assert.True(t, peer.RemoteDescriptionSet())
	assert.Equal(t, "v=0 streamer-offer", peer.remoteDesc.SDP)
	assert.Equal(t, StateConnecting, sess.State())
	assert.Equal(t, 1, env.metrics.started)
}

func TestViewerJoinUnknownSessionCreatesNoPeer(t *testing.T) {
	env := newViewerEnv(t)

	_, err := env.svc.Join(context.Background(), "missing", "bob", nil)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Empty(t, env.peers.peers)
}

func TestViewerJoinAnsweredSessionRejected(t *testing.T) {
	env := newViewerEnv(t)
	ctx := context.Background()
	env.createOffer(t, "call-1")

	first, err := env.svc.Join(ctx, "call-1", "bob", nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = env.svc.Join(ctx, "call-1", "carol", nil)
	assert.ErrorIs(t, err, domain.ErrAnswerExists)
	// losing joiner allocated no peer
	assert.Len(t, env.peers.peers, 1)
}

func TestViewerReceivesStreamerCandidates(t *testing.T) {
	env := newViewerEnv(t)
	ctx := context.Background()
	env.createOffer(t, "call-1")

	// candidate present before join gets replayed
	require.NoError(t, env.channel.AppendCandidate(ctx, domain.IceCandidateRecord{
		SessionID: "call-1", Side: domain.SideOffer, Candidate: "candidate:pre",
	}))

	sess, err := env.svc.Join(ctx, "call-1", "bob", nil)
	require.NoError(t, err)
	defer sess.Close()

	peer := env.peers.last()
	applied := peer.appliedCandidates()
	require.Len(t, applied, 1)
	assert.Equal(t, "candidate:pre", applied[0].Candidate)

	require.NoError(t, env.channel.AppendCandidate(ctx, domain.IceCandidateRecord{
		SessionID: "call-1", Side: domain.SideOffer, Candidate: "candidate:post",
	}))
	assert.Len(t, peer.appliedCandidates(), 2)
}

func TestViewerPublishesAnswerSideCandidates(t *testing.T) {
	env := newViewerEnv(t)
	ctx := context.Background()
	env.createOffer(t, "call-1")

	sess, err := env.svc.Join(ctx, "call-1", "bob", nil)
	require.NoError(t, err)
	defer sess.Close()

	var seen []domain.IceCandidateRecord
	unsub, err := env.channel.WatchCandidates(ctx, "call-1", domain.SideAnswer, func(c domain.IceCandidateRecord) {
		seen = append(seen, c)
	})
	require.NoError(t, err)
	defer unsub()

	env.peers.last().emitLocalCandidate("candidate:viewer-1")

	require.Len(t, seen, 1)
	assert.Equal(t, domain.SideAnswer, seen[0].Side)
	assert.Equal(t, 1, env.metrics.forwarded[domain.SideAnswer])
}

func TestViewerRequestKeyFrame(t *testing.T) {
	env := newViewerEnv(t)
	env.createOffer(t, "call-1")

	sess, err := env.svc.Join(context.Background(), "call-1", "bob", nil)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.RequestKeyFrame(0xDEAD))

	peer := env.peers.last()
	require.Len(t, peer.rtcpSent, 1)
	pli, ok := peer.rtcpSent[0].(*rtcp.PictureLossIndication)
	require.True(t, ok)
	assert.Equal(t, uint32(0xDEAD), pli.MediaSSRC)
}

func TestViewerCloseIsIdempotent(t *testing.T) {
	env := newViewerEnv(t)
	env.createOffer(t, "call-1")

	sess, err := env.svc.Join(context.Background(), "call-1", "bob", nil)
	require.NoError(t, err)

	sess.Close()
	sess.Close()

	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 1, env.peers.last().closeCount)
	assert.Equal(t, 1, env.metrics.ended)
}

func TestViewerConnectionFailureSetsErr(t *testing.T) {
	env := newViewerEnv(t)
	env.createOffer(t, "call-1")

	sess, err := env.svc.Join(context.Background(), "call-1", "bob", nil)
	require.NoError(t, err)
	require.NoError(t, sess.Err())

	env.peers.last().setConnectionState(webrtc.PeerConnectionStateFailed)

	assert.Equal(t, StateFailed, sess.State())
	assert.ErrorIs(t, sess.Err(), domain.ErrConnectionFailed)
}

func TestViewerJoinEmptySessionID(t *testing.T) {
	env := newViewerEnv(t)

	_, err := env.svc.Join(context.Background(), "", "bob", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidSessionID)
	assert.Empty(t, env.peers.peers)
}

func TestViewerDisconnectedTearsDown(t *testing.T) {
	env := newViewerEnv(t)
	env.createOffer(t, "call-1")

	sess, err := env.svc.Join(context.Background(), "call-1", "bob", nil)
	require.NoError(t, err)

	peer := env.peers.last()
	peer.setConnectionState(webrtc.PeerConnectionStateConnected)
	peer.setConnectionState(webrtc.PeerConnectionStateDisconnected)

	assert.Equal(t, StateDisconnected, sess.State())
	assert.Equal(t, 1, peer.closeCount)
	assert.Equal(t, 1, env.metrics.ended)
	assert.NoError(t, sess.Err())
}
