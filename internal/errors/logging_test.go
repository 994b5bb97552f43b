package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	base := logrus.New()
	base.SetOutput(buf)
	base.SetFormatter(&logrus.JSONFormatter{})
	return NewLogger(base), buf
}

func TestLogger_LogErrorAddsAppErrorFields(t *testing.T) {
	logger, buf := newBufferLogger()

	logger.LogError(NewDeliveryError("edit", 500, "oops"), "delivery failed", logrus.Fields{"chat_id": "42"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "DELIVERY_FAILED", entry["error_code"])
	assert.Equal(t, true, entry["retryable"])
	assert.Equal(t, "42", entry["chat_id"])
	assert.Equal(t, "delivery failed", entry["msg"])
}

func TestLogger_LogRetryableError(t *testing.T) {
	logger, buf := newBufferLogger()

	logger.LogRetryableError(NewDeliveryError("post", 429, ""), "throttled")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])

	buf.Reset()
	logger.LogRetryableError(errors.New("plain"), "failed")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
}
