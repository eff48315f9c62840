package ports

import (
	"context"

	"aimon/internal/core/domain"
)

// Unsubscribe tears down a watch. Implementations must make it idempotent;
// callers invoke it unconditionally on teardown.
type Unsubscribe func()

// SignalingChannel is the shared document store used to exchange SDP and ICE
// data before a direct peer connection exists.
//
// Session updates are delivered in commit order, at-least-once. Candidate
// watches may replay already-present candidates on subscribe; consumers must
// apply them idempotently.
type SignalingChannel interface {
	// CreateSession writes a new session record holding the offer. The caller
	// chooses the ID (the authenticated user's ID, or a generated one).
	CreateSession(ctx context.Context, id domain.SessionID, offer *domain.SessionDescription) error

	// GetSession returns domain.ErrSessionNotFound when no session exists.
	GetSession(ctx context.Context, id domain.SessionID) (*domain.CallSession, error)

	// PublishAnswer appends the answer to an existing session. Fails with
	// domain.ErrOfferMissing if no offer is present and domain.ErrAnswerExists
	// if another viewer already answered (first answer wins).
	PublishAnswer(ctx context.Context, id domain.SessionID, answer *domain.SessionDescription) error

	// WatchSession delivers every update of the session record.
	WatchSession(ctx context.Context, id domain.SessionID, fn func(*domain.CallSession)) (Unsubscribe, error)

	// AppendCandidate adds a candidate to the given side's collection.
	// Call sites treat failures as non-fatal: a dropped candidate degrades
	// connectivity, it does not abort the call.
	AppendCandidate(ctx context.Context, cand domain.IceCandidateRecord) error

	// WatchCandidates delivers each candidate appended to the given side.
	WatchCandidates(ctx context.Context, id domain.SessionID, side domain.CandidateSide, fn func(domain.IceCandidateRecord)) (Unsubscribe, error)
}
