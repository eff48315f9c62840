package domain

import "time"

// RecordingSegment is one rolling clip produced by the viewer-side recorder.
// Segment boundaries are wall-clock driven; Truncated marks a segment cut
// short by an explicit stop rather than a rollover.
type RecordingSegment struct {
	Index     int           `json:"index"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Path      string        `json:"path"`
	URL       string        `json:"url"`
	Size      int64         `json:"size"`
	Truncated bool          `json:"truncated"`
}
