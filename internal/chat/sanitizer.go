package chat

import "github.com/microcosm-cc/bluemonday"

// Sanitizer strips markup from message content
type Sanitizer interface {
	Sanitize(content string) string
}

// strictSanitizer removes every HTML element and escapes the rest
type strictSanitizer struct {
	policy *bluemonday.Policy
}

// NewStrictSanitizer returns a sanitizer backed by bluemonday's strict policy
func NewStrictSanitizer() Sanitizer {
	return &strictSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *strictSanitizer) Sanitize(content string) string {
	return s.policy.Sanitize(content)
}
