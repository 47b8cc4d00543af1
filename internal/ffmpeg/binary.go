// Package ffmpeg drives the external encoder, prober and DASH packager:
// binary detection, command builders, a line-streaming process runner and
// a registry of terminators for running children.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/dashingest/internal/util"
)

// Environment variables consulted when a binary path is not configured.
const (
	FFmpegEnvVar  = "DASHINGEST_FFMPEG_BINARY"
	FFprobeEnvVar = "DASHINGEST_FFPROBE_BINARY"
	MP4BoxEnvVar  = "DASHINGEST_MP4BOX_BINARY"
)

var versionPattern = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// BinaryInfo contains the resolved external binaries.
type BinaryInfo struct {
	FFmpegPath   string `json:"ffmpeg_path"`
	FFprobePath  string `json:"ffprobe_path"`
	MP4BoxPath   string `json:"mp4box_path"`
	Version      string `json:"version"`
	MajorVersion int    `json:"major_version"`
	MinorVersion int    `json:"minor_version"`
	BuildInfo    string `json:"build_info,omitempty"`
}

// BinaryPaths are explicitly configured binary locations. Empty fields are
// auto-detected.
type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
	MP4Box  string
}

// BinaryDetector handles detection and caching of the external binaries.
type BinaryDetector struct {
	paths BinaryPaths

	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewBinaryDetector creates a new binary detector.
func NewBinaryDetector(paths BinaryPaths) *BinaryDetector {
	return &BinaryDetector{
		paths:    paths,
		cacheTTL: 5 * time.Minute,
	}
}

// WithCacheTTL sets the cache TTL for binary detection.
func (d *BinaryDetector) WithCacheTTL(ttl time.Duration) *BinaryDetector {
	d.cacheTTL = ttl
	return d
}

// Detect resolves ffmpeg, ffprobe and MP4Box. Every binary is required.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear clears the cached binary information.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	ffmpegPath, err := util.ResolveBinary(d.paths.FFmpeg, "ffmpeg", FFmpegEnvVar)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobePath, err := util.ResolveBinary(d.paths.FFprobe, "ffprobe", FFprobeEnvVar)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	mp4boxPath, err := util.ResolveBinary(d.paths.MP4Box, "MP4Box", MP4BoxEnvVar)
	if err != nil {
		return nil, fmt.Errorf("MP4Box not found: %w", err)
	}

	info := &BinaryInfo{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		MP4BoxPath:  mp4boxPath,
	}

	output, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}
	if err := parseVersion(string(output), info); err != nil {
		return nil, err
	}

	return info, nil
}

// parseVersion fills the version fields from `ffmpeg -version` output, e.g.
// "ffmpeg version 6.0 Copyright..." or "ffmpeg version n6.0-2-g...".
func parseVersion(output string, info *BinaryInfo) error {
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "ffmpeg version"):
			parts := strings.Fields(line)
			if len(parts) < 3 {
				continue
			}
			info.Version = parts[2]
			if m := versionPattern.FindStringSubmatch(parts[2]); len(m) == 3 {
				info.MajorVersion, _ = strconv.Atoi(m[1])
				info.MinorVersion, _ = strconv.Atoi(m[2])
			}
		case strings.HasPrefix(line, "built with"):
			info.BuildInfo = strings.TrimPrefix(line, "built with ")
		}
	}

	if info.Version == "" {
		return fmt.Errorf("failed to parse ffmpeg version")
	}
	return nil
}

// JSON returns the binary info as JSON string.
func (info *BinaryInfo) JSON() string {
	data, _ := json.MarshalIndent(info, "", "  ")
	return string(data)
}

// SupportsMinVersion returns true if the ffmpeg version meets the minimum requirement.
func (info *BinaryInfo) SupportsMinVersion(major, minor int) bool {
	if info.MajorVersion > major {
		return true
	}
	return info.MajorVersion == major && info.MinorVersion >= minor
}
