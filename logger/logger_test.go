package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aposazhennikov/local-audio-player/logger"
)

func lines(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.LevelDebug, logger.ParseLevel("debug"))
	assert.Equal(t, logger.LevelInfo, logger.ParseLevel(" INFO "))
	assert.Equal(t, logger.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, logger.LevelWarning, logger.ParseLevel("warn"))
	assert.Equal(t, logger.LevelWarning, logger.ParseLevel("nonsense"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(&logger.Config{Level: logger.LevelWarning, Output: &buf, DisableSampling: true})

	log.Info("hidden")
	log.Warn("shown")

	got := lines(&buf)
	require.Len(t, got, 1)
	assert.Equal(t, "shown", got[0]["msg"])
}

func TestEventHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := logger.WithComponent(
		logger.NewLogger(&logger.Config{Level: logger.LevelDebug, Output: &buf, DisableSampling: true}),
		"playback")

	logger.LogPlaybackEvent(log, slog.LevelInfo, "Loading track", "42", "buffering", slog.String("source", "/a.mp3"))
	logger.LogScanEvent(log, slog.LevelInfo, "Scan finished", "/music", slog.Int("tracks", 3))
	logger.LogConfigEvent(log, slog.LevelInfo, "Configuration loaded")

	got := lines(&buf)
	require.Len(t, got, 3)
	assert.Equal(t, "playback", got[0]["component"])
	assert.Equal(t, "42", got[0]["media_id"])
	assert.Equal(t, "playback", got[0]["event_type"])
	assert.Equal(t, "/music", got[1]["root"])
	assert.EqualValues(t, 3, got[1]["tracks"])
	assert.Equal(t, "config", got[2]["event_type"])
}

func TestFileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "player.log")
	log := logger.NewLogger(&logger.Config{
		Level:           logger.LevelInfo,
		Output:          &buf,
		File:            path,
		MaxSizeMB:       1,
		DisableSampling: true,
	})

	log.Info("to both sinks")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both sinks")
	assert.Contains(t, buf.String(), "to both sinks")
}

func TestThresholdSamplingDropsRepeats(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(&logger.Config{
		Level:                 logger.LevelInfo,
		Output:                &buf,
		ThresholdSamplingTick: time.Minute,
		ThresholdSamplingMax:  2,
		ThresholdSamplingRate: 0,
	})

	for i := 0; i < 20; i++ {
		log.Info("same message")
	}

	got := lines(&buf)
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), 20)
}
