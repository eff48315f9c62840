package domain

import "time"

type NotificationType string

const (
	NotifyMotion NotificationType = "motion"
	NotifyPerson NotificationType = "person"
	NotifyAnimal NotificationType = "animal"
	NotifySystem NotificationType = "system"
	NotifyStream NotificationType = "stream"
)

type Notification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Type      NotificationType  `json:"type"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NotificationSettings controls which notifications are delivered to
// subscribers. The zero value delivers nothing; use DefaultNotificationSettings.
type NotificationSettings struct {
	Enabled bool                      `json:"enabled" yaml:"enabled"`
	Sound   bool                      `json:"sound" yaml:"sound"`
	Desktop bool                      `json:"desktop" yaml:"desktop"`
	Types   map[NotificationType]bool `json:"types" yaml:"types"`
}

func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled: true,
		Sound:   true,
		Desktop: true,
		Types: map[NotificationType]bool{
			NotifyMotion: true,
			NotifyPerson: true,
			NotifyAnimal: true,
			NotifySystem: true,
			NotifyStream: true,
		},
	}
}

// Allows reports whether a notification of type t should be delivered.
// Unknown types fall back to the system toggle.
func (s NotificationSettings) Allows(t NotificationType) bool {
	if !s.Enabled {
		return false
	}
	enabled, known := s.Types[t]
	if !known {
		return s.Types[NotifySystem]
	}
	return enabled
}
