package transcode

import (
	"regexp"
	"strconv"
)

// ProgressSpan is the share of task progress given to encoding. The rest is
// left for packaging and promotion.
const ProgressSpan = 96

// Window is an inclusive progress range assigned to one rung.
type Window struct {
	Lower int `json:"lower"`
	Upper int `json:"upper"`
}

// Windows splits [0, ProgressSpan] between rungs in proportion to their
// weights. Each window starts one past the previous upper bound and the
// last one always ends at ProgressSpan.
func Windows(rungs []Rung) []Window {
	if len(rungs) == 0 {
		return nil
	}

	total := 0
	for _, r := range rungs {
		total += r.Weight
	}

	windows := make([]Window, len(rungs))
	for i, r := range rungs {
		lower := 0
		if i > 0 {
			lower = windows[i-1].Upper + 1
		}
		upper := lower
		if total > 0 {
			upper = lower + int(float64(r.Weight)/float64(total)*ProgressSpan)
		}
		windows[i] = Window{Lower: lower, Upper: upper}
	}
	windows[len(windows)-1].Upper = ProgressSpan
	return windows
}

var framePattern = regexp.MustCompile(`^frame=\s*(\d+)\s+fps=\s*\d+`)

// ParseFrames extracts the frame count from an encoder stats line.
func ParseFrames(line string) (int, bool) {
	m := framePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	frames, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return frames, true
}

// ProgressReporter receives absolute task progress values.
type ProgressReporter interface {
	ReportProgress(progress int)
}

// ReporterFunc adapts a function to ProgressReporter.
type ReporterFunc func(progress int)

// ReportProgress calls f(progress).
func (f ReporterFunc) ReportProgress(progress int) { f(progress) }

// Mapper turns encoder output lines for one rung into task progress.
type Mapper struct {
	window      Window
	totalFrames int
	reporter    ProgressReporter
}

// NewMapper creates a Mapper reporting into window. totalFrames below one
// is treated as one.
func NewMapper(window Window, totalFrames int, reporter ProgressReporter) *Mapper {
	if totalFrames < 1 {
		totalFrames = 1
	}
	return &Mapper{window: window, totalFrames: totalFrames, reporter: reporter}
}

// Handle parses line and reports once if it carries a frame count.
// It returns whether the line was a progress line.
func (m *Mapper) Handle(line string) bool {
	frames, ok := ParseFrames(line)
	if !ok {
		return false
	}
	m.reporter.ReportProgress(m.Absolute(frames))
	return true
}

// Absolute maps a completed frame count into the window.
func (m *Mapper) Absolute(frames int) int {
	fraction := float64(frames) / float64(m.totalFrames)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return int(float64(m.window.Lower) + fraction*float64(m.window.Upper-m.window.Lower))
}
