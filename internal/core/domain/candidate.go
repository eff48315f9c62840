package domain

import "fmt"

// CandidateSide tags which peer discovered a candidate. Each side publishes
// to its own collection and consumes the opposite one.
type CandidateSide string

const (
	SideOffer  CandidateSide = "offer"
	SideAnswer CandidateSide = "answer"
)

func (s CandidateSide) Valid() bool {
	return s == SideOffer || s == SideAnswer
}

func (s CandidateSide) Opposite() CandidateSide {
	if s == SideOffer {
		return SideAnswer
	}
	return SideOffer
}

// IceCandidateRecord is one ICE candidate belonging to one side of one session.
type IceCandidateRecord struct {
	SessionID     SessionID     `json:"session_id"`
	Side          CandidateSide `json:"side"`
	Candidate     string        `json:"candidate"`
	SDPMid        string        `json:"sdp_mid,omitempty"`
	SDPMLineIndex uint16        `json:"sdp_mline_index"`
}

func (c *IceCandidateRecord) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil candidate", ErrMalformedSignalingData)
	}
	if c.Candidate == "" {
		return fmt.Errorf("%w: empty candidate", ErrMalformedSignalingData)
	}
	if !c.Side.Valid() {
		return fmt.Errorf("%w: unknown candidate side %q", ErrMalformedSignalingData, c.Side)
	}
	return nil
}
