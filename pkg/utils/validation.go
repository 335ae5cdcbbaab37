package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// Font family: letters, digits, spaces, dashes, underscores, dots, plus
	fontNamePattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} ._+-]{0,127}$`)

	// Resource type: short lowercase tag, e.g. "css", "svg", "text/plain"
	resourceTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.+/_-]{0,63}$`)
)

// MaxURLLength bounds every URL accepted over the API
const MaxURLLength = 2048

// ValidateURL validates an absolute http(s) URL
// Returns error if invalid, nil if valid
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url cannot be empty")
	}
	if len(raw) > MaxURLLength {
		return fmt.Errorf("url too long: max %d characters", MaxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q: must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url: missing host")
	}
	return nil
}

// ValidateFontName validates a font family name
// Returns error if invalid, nil if valid
func ValidateFontName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("font name cannot be empty")
	}
	if !fontNamePattern.MatchString(name) {
		return fmt.Errorf("invalid font name: letters, digits, spaces, dots, dashes, underscores, max 128 chars")
	}
	return nil
}

// ValidateResourceType validates the category tag of a cached resource
// Returns error if invalid, nil if valid
func ValidateResourceType(typ string) error {
	if typ == "" {
		return fmt.Errorf("resource type cannot be empty")
	}
	if !resourceTypePattern.MatchString(typ) {
		return fmt.Errorf("invalid resource type: lowercase alphanumeric with . + / _ -, max 64 chars")
	}
	return nil
}
