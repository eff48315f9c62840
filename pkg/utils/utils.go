package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Now is swappable in tests.
var Now = time.Now

// GenerateSessionID returns a short random identifier usable as a call key.
func GenerateSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the platform is broken, fall back to uuid
		return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	}
	return hex.EncodeToString(b)
}

// GenerateRequestID returns a UUID for request correlation.
func GenerateRequestID() string {
	return uuid.New().String()
}

// TruncateString shortens s to max runes, appending "..." when cut.
func TruncateString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// FormatDuration renders d in a compact human form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

// SegmentTimestamp formats t for use in recording file names.
func SegmentTimestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
