package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoVideoStream indicates a probed file without a video stream.
var ErrNoVideoStream = errors.New("no video stream found")

// ProbeResult contains the streams reported by ffprobe.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"` // video, audio, subtitle, data
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
	PixFmt       string            `json:"pix_fmt,omitempty"`
	RFrameRate   string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate string            `json:"avg_frame_rate,omitempty"`
	Duration     string            `json:"duration,omitempty"`
	NumFrames    string            `json:"nb_frames,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// ProbeArgs returns the ffprobe arguments used to inspect the video streams of path.
func ProbeArgs(path string) []string {
	return []string{
		"-loglevel", "panic",
		"-hide_banner",
		"-show_streams",
		"-select_streams", "v",
		"-print_format", "json",
		path,
	}
}

// Probe returns the video streams of a local file.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.ffprobePath, ProbeArgs(path)...)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	return &result, nil
}

// VideoStream returns the first video stream, or ErrNoVideoStream.
func (r *ProbeResult) VideoStream() (*ProbeStream, error) {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" || r.Streams[i].CodecType == "" {
			return &r.Streams[i], nil
		}
	}
	return nil, ErrNoVideoStream
}

// Frames returns nb_frames, or 0 when ffprobe did not report it.
func (s *ProbeStream) Frames() int {
	n, err := strconv.Atoi(s.NumFrames)
	if err != nil {
		return 0
	}
	return n
}

// ParseFramerate parses a framerate string like "30000/1001" or "25".
func ParseFramerate(fr string) (float64, error) {
	num, den, found := strings.Cut(fr, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid framerate %q: %w", fr, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid framerate %q: %w", fr, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("invalid framerate %q: zero denominator", fr)
	}
	return n / d, nil
}

// FramerateString renders a framerate fraction as a decimal string, e.g.
// "30/1" as "30.0" and "30000/1001" as "29.97002997002997". An empty or
// unparseable input yields "".
func FramerateString(fr string) string {
	if fr == "" {
		return ""
	}
	rate, err := ParseFramerate(fr)
	if err != nil {
		return ""
	}
	s := strconv.FormatFloat(rate, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
