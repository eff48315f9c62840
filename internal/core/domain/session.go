package domain

import (
	"fmt"
	"time"
)

type SessionID string
type UserID string

const (
	SDPTypeOffer  = "offer"
	SDPTypeAnswer = "answer"
)

// SessionDescription is one side's SDP as exchanged over the signaling channel.
type SessionDescription struct {
	Type         string `json:"type"`
	SDP          string `json:"sdp"`
	OriginatorID UserID `json:"originator_id,omitempty"`
}

// Validate rejects descriptions that could not have come from a real peer.
// Malformed payloads are caught here, at the channel boundary, instead of
// surfacing as nil dereferences deep inside negotiation.
func (d *SessionDescription) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil description", ErrMalformedSignalingData)
	}
	if d.Type != SDPTypeOffer && d.Type != SDPTypeAnswer {
		return fmt.Errorf("%w: unknown sdp type %q", ErrMalformedSignalingData, d.Type)
	}
	if d.SDP == "" {
		return fmt.Errorf("%w: empty sdp", ErrMalformedSignalingData)
	}
	return nil
}

// CallSession is the shared session record: an offer written once by the
// streamer, and at most one answer appended later by a viewer.
type CallSession struct {
	ID        SessionID           `json:"id"`
	Offer     *SessionDescription `json:"offer"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func (s *CallSession) Answered() bool {
	return s != nil && s.Answer != nil
}

// Clone returns a deep copy so watchers never share mutable state with the store.
func (s *CallSession) Clone() *CallSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.Offer != nil {
		offer := *s.Offer
		out.Offer = &offer
	}
	if s.Answer != nil {
		answer := *s.Answer
		out.Answer = &answer
	}
	return &out
}
