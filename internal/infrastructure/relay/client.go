package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
	"aimon/pkg/circuitbreaker"
	"aimon/pkg/config"
)

// Client asks the transcoding relay to start a transceiver for a user's
// stream. The call is best effort and wrapped in a circuit breaker so a dead
// relay does not slow every session start to its timeout.
type Client struct {
	endpoint string
	http     *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		endpoint: cfg.Relay.Endpoint,
		http: &http.Client{
			Timeout: cfg.Relay.Timeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

var _ ports.RelayTrigger = (*Client)(nil)

type startTransceiverRequest struct {
	UserID string `json:"userId"`
}

func (c *Client) StartTransceiver(ctx context.Context, userID domain.UserID) error {
	return c.breaker.Execute(ctx, func() error {
		body, err := json.Marshal(startTransceiverRequest{UserID: string(userID)})
		if err != nil {
			return fmt.Errorf("failed to marshal relay request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build relay request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("relay request failed: %w", err)
		}
		defer resp.Body.Close()
		// read fully so the connection is reusable; cap it, the relay
		// answers with a short status document
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("relay returned status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
		}

		c.logger.Debug("transceiver start requested",
			zap.String("user_id", string(userID)),
			zap.ByteString("response", bytes.TrimSpace(respBody)),
			zap.Duration("took", time.Since(start)))
		return nil
	})
}
