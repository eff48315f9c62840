package ports

import (
	"context"
	"time"

	"aimon/internal/core/domain"
)

// TokenStore persists push delivery tokens per user. SaveToken has
// array-union semantics: the same token stored twice is kept once, and a
// user may hold tokens from several devices.
type TokenStore interface {
	SaveToken(ctx context.Context, userID domain.UserID, token string) error
	Tokens(ctx context.Context, userID domain.UserID) ([]string, error)
}

// RelayTrigger asks the backend relay to start a transcoding process for the
// given user's stream. Failures are reported as warnings, never fatal.
type RelayTrigger interface {
	StartTransceiver(ctx context.Context, userID domain.UserID) error
}

// SignalMetrics receives counters from the session services. Implementations
// must tolerate being nil-checked away; all call sites guard against nil.
type SignalMetrics interface {
	SessionStarted()
	SessionEnded(duration time.Duration)
	CandidateForwarded(side domain.CandidateSide)
	CandidateDropped(side domain.CandidateSide)
	SegmentFinalized(seg domain.RecordingSegment)
}
