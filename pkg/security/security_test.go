package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oakline/schedcore/pkg/core"
)

func TestValidatePayloadSize(t *testing.T) {
	assert.NoError(t, ValidatePayloadSize(nil))
	assert.NoError(t, ValidatePayloadSize([]byte(`{"message":"hi"}`)))

	huge := make([]byte, MaxPayloadSize+1)
	assert.ErrorIs(t, ValidatePayloadSize(huge), core.ErrPayloadTooLarge)
}

func TestValidateWebhookURL(t *testing.T) {
	assert.NoError(t, ValidateWebhookURL("https://example.com/hook"))
	assert.NoError(t, ValidateWebhookURL("http://localhost:8080/x"))

	assert.Error(t, ValidateWebhookURL(""))
	assert.Error(t, ValidateWebhookURL("/relative/path"))
	assert.Error(t, ValidateWebhookURL("ftp://example.com/hook"))
	assert.Error(t, ValidateWebhookURL("file:///etc/passwd"))
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorMessage(""))
	assert.Equal(t, "plain error", SanitizeErrorMessage("plain error"))
	assert.Equal(t, "line1\nline2", SanitizeErrorMessage("line1\nline2"))
	assert.Equal(t, "ab", SanitizeErrorMessage("a\x00b"))
}

func TestSanitizeErrorMessage_Truncates(t *testing.T) {
	long := strings.Repeat("x", MaxErrorMessageLength+100)
	got := SanitizeErrorMessage(long)

	assert.Len(t, got, MaxErrorMessageLength)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestClampBatchSize(t *testing.T) {
	assert.Equal(t, 1, ClampBatchSize(0))
	assert.Equal(t, 1, ClampBatchSize(-5))
	assert.Equal(t, 5, ClampBatchSize(5))
	assert.Equal(t, MaxBatchSize, ClampBatchSize(MaxBatchSize+1))
}

func TestClampToolCalls(t *testing.T) {
	assert.Equal(t, 1, ClampToolCalls(0))
	assert.Equal(t, 25, ClampToolCalls(25))
	assert.Equal(t, MaxToolCalls, ClampToolCalls(MaxToolCalls*2))
}

func TestClampTokenBudget(t *testing.T) {
	assert.Equal(t, 1, ClampTokenBudget(-1))
	assert.Equal(t, 100_000, ClampTokenBudget(100_000))
	assert.Equal(t, MaxTokenBudget, ClampTokenBudget(MaxTokenBudget+1))
}
