package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)
	deviceIDRegex  = regexp.MustCompile(`^[a-zA-Z0-9:/_.-]{1,256}$`)
	usernameRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)
	emailRegex     = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateSessionID checks that an id is safe to use as a signaling key.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id must not be empty")
	}
	if !sessionIDRegex.MatchString(id) {
		return fmt.Errorf("session id contains invalid characters or is too long")
	}
	return nil
}

// ValidateDeviceID checks a capture device identifier.
func ValidateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("device id must not be empty")
	}
	if !deviceIDRegex.MatchString(id) {
		return fmt.Errorf("device id contains invalid characters or is too long")
	}
	return nil
}

// ValidatePushToken checks a device push registration token.
func ValidatePushToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("push token must not be empty")
	}
	if utf8.RuneCountInString(token) > 4096 {
		return fmt.Errorf("push token is too long")
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username must be 3-32 characters of letters, digits, underscore or hyphen")
	}
	return nil
}

func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email must not be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("email address is malformed")
	}
	return nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if utf8.RuneCountInString(password) > 128 {
		return fmt.Errorf("password must be at most 128 characters")
	}
	return nil
}

// ValidateEndpointURL checks that an outbound endpoint is an absolute http(s) URL.
func ValidateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("endpoint url is malformed: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint url must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint url must include a host")
	}
	return nil
}
