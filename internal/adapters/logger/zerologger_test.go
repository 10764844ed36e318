package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(level zerolog.Level) (*ZeroLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(level)
	return &ZeroLogger{logger: zl}, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestFieldsAppearInOutput(t *testing.T) {
	l, buf := newBufferedLogger(zerolog.DebugLevel)

	l.Info(context.Background(), "Order submitted", map[string]interface{}{
		"stockCode": "005930", "quantity": 13,
	})

	entry := decodeLine(t, buf)
	assert.Equal(t, "Order submitted", entry["message"])
	assert.Equal(t, "005930", entry["stockCode"])
	assert.Equal(t, float64(13), entry["quantity"])
	assert.Equal(t, "info", entry["level"])
}

func TestErrorAttachesErrField(t *testing.T) {
	l, buf := newBufferedLogger(zerolog.DebugLevel)

	l.Error(context.Background(), fmt.Errorf("broker unavailable"), "Submission failed")

	entry := decodeLine(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "broker unavailable", entry["error"])
}

func TestLevelThresholdFiltersOutput(t *testing.T) {
	l, buf := newBufferedLogger(zerolog.WarnLevel)

	l.Debug(context.Background(), "noise")
	l.Info(context.Background(), "noise")
	assert.Zero(t, buf.Len())

	l.Warn(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseZeroLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"Error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseZeroLevel(tt.in), tt.in)
	}
}

func TestNewZeroLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockbot.log")
	l := NewZeroLogger(ZeroConfig{Level: "info", FilePath: path})

	l.Info(context.Background(), "started")
	// The lumberjack writer creates the file lazily on first write.
	assert.FileExists(t, path)
}
