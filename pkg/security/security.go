package security

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/oakline/schedcore/pkg/core"
)

// Security limits and configuration
const (
	// MaxPayloadSize is the maximum size in bytes for action payloads (256KB)
	MaxPayloadSize = 256 << 10

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxBatchSize is the hard limit for jobs claimed per poll cycle
	MaxBatchSize = 100

	// MaxToolCalls is the hard limit for tool invocations per agent run
	MaxToolCalls = 100

	// MaxTokenBudget is the hard limit for tokens per agent run
	MaxTokenBudget = 1_000_000
)

// ValidatePayloadSize checks a raw payload against the size limit.
func ValidatePayloadSize(raw []byte) error {
	if len(raw) > MaxPayloadSize {
		return core.ErrPayloadTooLarge
	}
	return nil
}

// ValidateWebhookURL ensures a webhook target is an absolute http(s) URL.
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return core.ErrInvalidPayload
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return core.ErrInvalidPayload
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampBatchSize ensures the per-cycle claim limit is within bounds.
func ClampBatchSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// ClampToolCalls ensures the tool-call ceiling is within bounds.
func ClampToolCalls(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxToolCalls {
		return MaxToolCalls
	}
	return n
}

// ClampTokenBudget ensures the token ceiling is within bounds.
func ClampTokenBudget(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxTokenBudget {
		return MaxTokenBudget
	}
	return n
}
