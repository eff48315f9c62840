package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"aimon/internal/core/domain"
	"aimon/internal/core/services"
)

func newFeedServer(t *testing.T, notify *services.NotificationService) *httptest.Server {
	feed := NewFeed(notify, nil, zaptest.NewLogger(t))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feed.ServeFeed(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialFeed(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications"
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscriber(t *testing.T, notify *services.NotificationService) {
	t.Helper()
	require.Eventually(t, func() bool {
		return notify.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeedDeliversNotifications(t *testing.T) {
	notify := services.NewNotificationService(nil, zaptest.NewLogger(t))
	srv := newFeedServer(t, notify)
	conn := dialFeed(t, srv, "")
	waitForSubscriber(t, notify)

	notify.StreamStarted(context.Background(), "call-1", "alice")

	msg := readEvent(t, conn)
	require.Equal(t, "notification", msg.Type)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, domain.NotifyStream, msg.Notification.Type)
	assert.Equal(t, "call-1", msg.Notification.Data["session_id"])
}

func TestFeedFiltersByRequestedTypes(t *testing.T) {
	notify := services.NewNotificationService(nil, zaptest.NewLogger(t))
	srv := newFeedServer(t, notify)
	conn := dialFeed(t, srv, "types=stream")
	waitForSubscriber(t, notify)

	ctx := context.Background()
	notify.Notify(ctx, domain.NotifyMotion, "Motion", "movement detected", nil)
	notify.StreamStarted(ctx, "call-1", "alice")

	// the motion event was filtered out, the first delivery is the stream one
	msg := readEvent(t, conn)
	require.Equal(t, "notification", msg.Type)
	assert.Equal(t, domain.NotifyStream, msg.Notification.Type)
}

func TestFeedUnsubscribesOnDisconnect(t *testing.T) {
	notify := services.NewNotificationService(nil, zaptest.NewLogger(t))
	srv := newFeedServer(t, notify)
	conn := dialFeed(t, srv, "")
	waitForSubscriber(t, notify)

	conn.Close()

	require.Eventually(t, func() bool {
		return notify.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
