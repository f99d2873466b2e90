package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvStr(t *testing.T) {
	t.Setenv("TEST_STR", "value")

	assert.Equal(t, "value", GetEnvStr("TEST_STR", "fallback"))
	assert.Equal(t, "fallback", GetEnvStr("TEST_STR_UNSET", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "not-a-number")

	assert.Equal(t, 42, GetEnvInt("TEST_INT", 7))
	assert.Equal(t, 7, GetEnvInt("TEST_INT_BAD", 7))
	assert.Equal(t, 7, GetEnvInt("TEST_INT_UNSET", 7))
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"false", false},
		{"0", false},
		{"No", false},
		{"garbage", true}, // falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			assert.Equal(t, tt.want, GetEnvBool("TEST_BOOL", true))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "1500ms")
	t.Setenv("TEST_DUR_BAD", "soon")

	assert.Equal(t, 1500*time.Millisecond, GetEnvDuration("TEST_DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("TEST_DUR_BAD", time.Second))
}

func TestGetEnvLogLevel(t *testing.T) {
	t.Setenv("TEST_LEVEL", "warn")

	assert.Equal(t, slog.LevelWarn, GetEnvLogLevel("TEST_LEVEL", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, GetEnvLogLevel("TEST_LEVEL_UNSET", slog.LevelInfo))
}
