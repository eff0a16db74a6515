package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, format, level string, debug bool) Logger {
	return &ProductionLogger{
		level:       strings.ToLower(level),
		debug:       debug || level == "debug",
		serviceName: "codecoder",
		format:      format,
		output:      buf,
	}
}

func TestNewProductionLogger_ImplementsComponentAwareLogger(t *testing.T) {
	logger := NewProductionLogger(LoggingConfig{Level: "info", Format: "json"}, DevelopmentConfig{}, "codecoder")
	_, ok := logger.(ComponentAwareLogger)
	assert.True(t, ok, "ProductionLogger should implement ComponentAwareLogger")
}

func TestWithComponent_CreatesDistinctLoggerInstance(t *testing.T) {
	parent := NewProductionLogger(LoggingConfig{Level: "info", Format: "json"}, DevelopmentConfig{}, "codecoder")
	cal := parent.(ComponentAwareLogger)

	child := cal.WithComponent("hand")
	assert.NotSame(t, parent, child)
}

func TestProductionLogger_JSONFormatIncludesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "json", "info", false)

	child := logger.(ComponentAwareLogger).WithComponent("hitl")
	child.Info("request created", map[string]interface{}{"request_id": "abc123"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hitl", entry["component"])
	assert.Equal(t, "request created", entry["message"])
	assert.Equal(t, "abc123", entry["request_id"])
}

func TestProductionLogger_TextFormatIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "text", "info", false)

	logger.Info("gateway listening", map[string]interface{}{"addr": "127.0.0.1:3000"})

	out := buf.String()
	assert.True(t, strings.Contains(out, "gateway listening"))
	assert.True(t, strings.Contains(out, "addr=127.0.0.1:3000"))
}

func TestProductionLogger_DebugSuppressedUnlessEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "text", "info", false)
	logger.Debug("should not appear", nil)
	assert.Empty(t, buf.String())

	var buf2 bytes.Buffer
	debugLogger := newTestLogger(&buf2, "text", "debug", false)
	debugLogger.Debug("should appear", nil)
	assert.Contains(t, buf2.String(), "should appear")
}

func TestNoOpLogger_NeverPanics(t *testing.T) {
	l := &NoOpLogger{}
	l.Info("x", nil)
	l.Error("x", nil)
	l.Warn("x", nil)
	l.Debug("x", nil)
}
