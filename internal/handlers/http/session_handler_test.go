package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"aimon/internal/core/domain"
	"aimon/internal/core/services"
	"aimon/internal/infrastructure/push"
	"aimon/internal/infrastructure/signaling/memory"
	"aimon/pkg/config"
)

type gatewayFixture struct {
	router  *gin.Engine
	channel *memory.Channel
	notify  *services.NotificationService
	token   string
	userID  string
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	auth := services.NewAuthService("test-secret-0123456789abcdef", 15*time.Minute, 24*time.Hour)
	user, err := auth.Register("alice", "alice@example.com", "s3cure-pass")
	require.NoError(t, err)
	token, err := auth.GenerateToken(user.ID, user.Username)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	channel := memory.NewChannel(logger)
	notify := services.NewNotificationService(push.NewMemoryTokenStore(), logger)

	router := NewRouter(RouterDeps{
		Config:  config.DefaultConfig(),
		Logger:  logger,
		Auth:    auth,
		AuthH:   NewAuthHandler(auth, 15*time.Minute),
		Session: NewSessionHandler(channel, nil, nil, nil, notify, logger),
		Push:    NewPushHandler(push.NewMemoryTokenStore()),
	})

	return &gatewayFixture{
		router:  router,
		channel: channel,
		notify:  notify,
		token:   token,
		userID:  string(user.ID),
	}
}

func (f *gatewayFixture) authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + f.token}
}

func TestSessionRoutesRequireAuth(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/sessions", gin.H{
		"offer": gin.H{"type": "offer", "sdp": "v=0"},
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateSessionDefaultsToCallerID(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/sessions", gin.H{
		"offer": gin.H{"type": "offer", "sdp": "v=0 offer"},
	}, f.authHeader())
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, f.userID, decodeBody(t, w)["session_id"])

	w = getJSON(f.router, "/api/v1/sessions/"+f.userID, f.authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	session := decodeBody(t, w)["session"].(map[string]interface{})
	offer := session["offer"].(map[string]interface{})
	assert.Equal(t, "v=0 offer", offer["sdp"])
	assert.Equal(t, f.userID, offer["originator_id"])
}

func TestCreateSessionWithExplicitID(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/sessions", gin.H{
		"session_id": "call-42",
		"offer":      gin.H{"type": "offer", "sdp": "v=0"},
	}, f.authHeader())
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "call-42", decodeBody(t, w)["session_id"])
}

func TestCreateSessionRejectsBadOfferType(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/sessions", gin.H{
		"offer": gin.H{"type": "bogus", "sdp": "v=0"},
	}, f.authHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUnknownSessionIs404(t *testing.T) {
	f := newGatewayFixture(t)

	w := getJSON(f.router, "/api/v1/sessions/no-such-session", f.authHeader())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublishAnswerFirstWins(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/sessions", gin.H{
		"session_id": "call-1",
		"offer":      gin.H{"type": "offer", "sdp": "v=0"},
	}, f.authHeader())
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(f.router, "/api/v1/sessions/call-1/answer", gin.H{
		"answer": gin.H{"type": "answer", "sdp": "v=0 first"},
	}, f.authHeader())
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(f.router, "/api/v1/sessions/call-1/answer", gin.H{
		"answer": gin.H{"type": "answer", "sdp": "v=0 second"},
	}, f.authHeader())
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPublishAnswerWithoutOfferConflicts(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/sessions/call-1/answer", gin.H{
		"answer": gin.H{"type": "answer", "sdp": "v=0"},
	}, f.authHeader())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAppendCandidate(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/sessions", gin.H{
		"session_id": "call-1",
		"offer":      gin.H{"type": "offer", "sdp": "v=0"},
	}, f.authHeader())
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(f.router, "/api/v1/sessions/call-1/candidates", gin.H{
		"side":            "answer",
		"candidate":       "candidate:1 1 udp 2130706431 192.0.2.10 50000 typ host",
		"sdp_mid":         "0",
		"sdp_mline_index": 0,
	}, f.authHeader())
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestAppendCandidateRejectsUnknownSide(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/sessions", gin.H{
		"session_id": "call-1",
		"offer":      gin.H{"type": "offer", "sdp": "v=0"},
	}, f.authHeader())
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(f.router, "/api/v1/sessions/call-1/candidates", gin.H{
		"side":      "sideways",
		"candidate": "candidate:1 1 udp 2130706431 192.0.2.10 50000 typ host",
	}, f.authHeader())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteSession(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/sessions", gin.H{
		"session_id": "call-1",
		"offer":      gin.H{"type": "offer", "sdp": "v=0"},
	}, f.authHeader())
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/call-1", nil)
	req.Header.Set("Authorization", "Bearer "+f.token)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = getJSON(f.router, "/api/v1/sessions/call-1", f.authHeader())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListDevicesWithoutMediaSource(t *testing.T) {
	f := newGatewayFixture(t)

	w := getJSON(f.router, "/api/v1/devices", f.authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["devices"])
}

func TestStartTransceiverWithoutRelay(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/relay/start-transceiver", gin.H{}, f.authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "relay disabled", decodeBody(t, w)["status"])
}

func TestPushTokenSaveAndList(t *testing.T) {
	f := newGatewayFixture(t)

	w := postJSON(f.router, "/api/v1/push/tokens", gin.H{"token": "device-token-1"}, f.authHeader())
	require.Equal(t, http.StatusCreated, w.Code)

	// saving twice keeps one copy
	w = postJSON(f.router, "/api/v1/push/tokens", gin.H{"token": "device-token-1"}, f.authHeader())
	require.Equal(t, http.StatusCreated, w.Code)

	w = getJSON(f.router, "/api/v1/push/tokens", f.authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	tokens := decodeBody(t, w)["tokens"].([]interface{})
	assert.Len(t, tokens, 1)
}

func TestCreateSessionEmitsStreamNotification(t *testing.T) {
	f := newGatewayFixture(t)

	var got []domain.Notification
	unsub := f.notify.Subscribe(domain.DefaultNotificationSettings(), func(n domain.Notification) {
		got = append(got, n)
	})
	defer unsub()

	w := postJSON(f.router, "/api/v1/sessions", gin.H{
		"offer": gin.H{"type": "offer", "sdp": "v=0 offer"},
	}, f.authHeader())
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, got, 1)
	assert.Equal(t, domain.NotifyStream, got[0].Type)
	assert.Equal(t, f.userID, got[0].Data["session_id"])
	assert.Equal(t, f.userID, got[0].Data["user_id"])
}
