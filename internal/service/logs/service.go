// Package logs keeps a bounded in-memory copy of recent log records so the
// API can show what the transcode workers have been doing.
package logs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultMaxEntries is the number of records retained.
	DefaultMaxEntries = 1000
	// maxRecentErrors is the number of error records kept for Stats.
	maxRecentErrors = 10
)

// Entry is one captured log record.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Stats summarises the captured records.
type Stats struct {
	Total        int64            `json:"total"`
	ByLevel      map[string]int64 `json:"by_level"`
	ByComponent  map[string]int64 `json:"by_component"`
	RecentErrors []Entry          `json:"recent_errors"`
	Oldest       *time.Time       `json:"oldest,omitempty"`
	Newest       *time.Time       `json:"newest,omitempty"`
}

// Service stores recent log entries.
type Service struct {
	mu           sync.RWMutex
	entries      []Entry
	maxEntries   int
	total        int64
	byLevel      map[string]int64
	byComponent  map[string]int64
	recentErrors []Entry
}

// New creates a service retaining up to maxEntries records. A non-positive
// value uses DefaultMaxEntries.
func New(maxEntries int) *Service {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Service{
		entries:     make([]Entry, 0, maxEntries),
		maxEntries:  maxEntries,
		byLevel:     make(map[string]int64),
		byComponent: make(map[string]int64),
	}
}

// WrapHandler returns a handler that records every record it passes on to
// handler.
func (s *Service) WrapHandler(handler slog.Handler) slog.Handler {
	return &captureHandler{service: s, wrapped: handler}
}

// Add stores an entry, evicting the oldest one when full.
func (s *Service) Add(entry Entry) {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byLevel[entry.Level]++
	if entry.Component != "" {
		s.byComponent[entry.Component]++
	}
	if entry.Level == "error" {
		s.recentErrors = append(s.recentErrors, entry)
		if len(s.recentErrors) > maxRecentErrors {
			s.recentErrors = s.recentErrors[1:]
		}
	}

	if len(s.entries) >= s.maxEntries {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, entry)
}

// Recent returns up to limit of the newest entries, oldest first. A jobID
// restricts the result to records of that job.
func (s *Service) Recent(limit int, jobID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	if jobID == "" {
		matched = s.entries
	} else {
		for _, e := range s.entries {
			if e.JobID == jobID {
				matched = append(matched, e)
			}
		}
	}

	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	result := make([]Entry, limit)
	copy(result, matched[len(matched)-limit:])
	return result
}

// Stats returns counters over everything captured since start.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Total:        s.total,
		ByLevel:      make(map[string]int64, 4),
		ByComponent:  make(map[string]int64, len(s.byComponent)),
		RecentErrors: make([]Entry, len(s.recentErrors)),
	}
	for _, level := range []string{"debug", "info", "warn", "error"} {
		stats.ByLevel[level] = s.byLevel[level]
	}
	for component, n := range s.byComponent {
		stats.ByComponent[component] = n
	}
	copy(stats.RecentErrors, s.recentErrors)

	if len(s.entries) > 0 {
		oldest := s.entries[0].Timestamp
		newest := s.entries[len(s.entries)-1].Timestamp
		stats.Oldest = &oldest
		stats.Newest = &newest
	}
	return stats
}

type captureHandler struct {
	service *Service
	wrapped slog.Handler
	attrs   []slog.Attr
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.wrapped.Enabled(ctx, level)
}

func (h *captureHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{
		Timestamp: r.Time,
		Level:     levelName(r.Level),
		Message:   r.Message,
		Fields:    make(map[string]any),
	}
	for _, a := range h.attrs {
		addAttr(&entry, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(&entry, a)
		return true
	})
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}
	h.service.Add(entry)

	return h.wrapped.Handle(ctx, r)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{
		service: h.service,
		wrapped: h.wrapped.WithAttrs(attrs),
		attrs:   merged,
	}
}

// WithGroup passes the group through; captured attributes stay flat.
func (h *captureHandler) WithGroup(name string) slog.Handler {
	return &captureHandler{
		service: h.service,
		wrapped: h.wrapped.WithGroup(name),
		attrs:   h.attrs,
	}
}

func addAttr(entry *Entry, a slog.Attr) {
	value := a.Value.Resolve()
	switch a.Key {
	case "component":
		entry.Component = value.String()
	case "job_id":
		entry.JobID = value.String()
	case "task_id":
		entry.TaskID = value.String()
	default:
		entry.Fields[a.Key] = value.Any()
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
