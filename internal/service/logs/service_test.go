package logs

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturedLogger(s *Service) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(s.WrapHandler(base)), &buf
}

func TestService_CapturesRecords(t *testing.T) {
	s := New(10)
	logger, buf := newCapturedLogger(s)

	logger.With(slog.String("component", "runner")).
		Info("job started", slog.String("job_id", "J1"), slog.Int("tasks", 3))

	entries := s.Recent(0, "")
	require.Len(t, entries, 1)
	e := entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "info", e.Level)
	assert.Equal(t, "job started", e.Message)
	assert.Equal(t, "runner", e.Component)
	assert.Equal(t, "J1", e.JobID)
	assert.Equal(t, int64(3), e.Fields["tasks"])
	assert.Contains(t, buf.String(), "job started")
}

func TestService_EvictsOldest(t *testing.T) {
	s := New(2)
	for _, msg := range []string{"a", "b", "c"} {
		s.Add(Entry{Level: "info", Message: msg})
	}

	entries := s.Recent(0, "")
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Message)
	assert.Equal(t, "c", entries[1].Message)
	assert.Equal(t, int64(3), s.Stats().Total)
}

func TestService_RecentFiltersByJob(t *testing.T) {
	s := New(10)
	s.Add(Entry{Level: "info", Message: "one", JobID: "J1"})
	s.Add(Entry{Level: "info", Message: "two", JobID: "J2"})
	s.Add(Entry{Level: "info", Message: "three", JobID: "J1"})

	entries := s.Recent(0, "J1")
	require.Len(t, entries, 2)
	assert.Equal(t, "three", entries[1].Message)

	latest := s.Recent(1, "")
	require.Len(t, latest, 1)
	assert.Equal(t, "three", latest[0].Message)
}

func TestService_Stats(t *testing.T) {
	s := New(10)
	logger, _ := newCapturedLogger(s)
	logger = logger.With(slog.String("component", "transcode"))

	logger.Debug("probe")
	logger.Warn("slow")
	logger.Error("encoder failed")

	stats := s.Stats()
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.ByLevel["debug"])
	assert.Equal(t, int64(0), stats.ByLevel["info"])
	assert.Equal(t, int64(1), stats.ByLevel["error"])
	assert.Equal(t, int64(3), stats.ByComponent["transcode"])
	require.Len(t, stats.RecentErrors, 1)
	assert.Equal(t, "encoder failed", stats.RecentErrors[0].Message)
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
}

func TestService_RespectsWrappedLevel(t *testing.T) {
	s := New(10)
	base := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(s.WrapHandler(base))

	logger.Info("hidden")
	logger.Warn("shown")

	entries := s.Recent(0, "")
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
}
