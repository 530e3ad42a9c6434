package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"Error":   LevelError,
		"fatal":   LevelFatal,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON}).With(Component("engine"))

	log.Debug("hidden")
	log.Info("xp awarded", UserID("u1"), XPAmount(20), Err(errors.New("late publish")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "xp awarded", entry["message"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.EqualValues(t, 20, entry["xp_amount"])
	assert.Equal(t, "late publish", entry["error"])
	assert.Contains(t, entry, "timestamp")
}

func TestEnabled(t *testing.T) {
	log := New(Options{Output: &bytes.Buffer{}, Level: LevelWarn})
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelWarn))
	assert.True(t, log.With(String("k", "v")).Enabled(LevelError))

	assert.False(t, Nop().Enabled(LevelError))
}

func TestContext(t *testing.T) {
	log := Nop()
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
