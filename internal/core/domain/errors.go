package domain

import "errors"

var (
	ErrSessionNotFound        = errors.New("session not found")
	ErrInvalidSessionID       = errors.New("invalid session id")
	ErrOfferMissing           = errors.New("session has no offer")
	ErrAnswerExists           = errors.New("session already answered")
	ErrChannelWrite           = errors.New("signaling channel write failed")
	ErrMalformedSignalingData = errors.New("malformed signaling payload")
	ErrNoMedia                = errors.New("no local media available")
	ErrPermissionDenied       = errors.New("media permission denied")
	ErrDeviceUnavailable      = errors.New("media device unavailable")
	ErrPeerClosed             = errors.New("peer connection closed")
	ErrConnectionFailed       = errors.New("peer connection failed")
)
