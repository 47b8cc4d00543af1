// Package version carries the build identity of dashingest.
//
// The variables are set at link time:
//
//	go build -ldflags "-X github.com/jmylchreest/dashingest/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/dashingest/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/dashingest/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// Set via ldflags.
var (
	// Version is a SemVer string; snapshot builds carry a "-SNAPSHOT.<sha>" suffix.
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ApplicationName is the binary and API name.
const ApplicationName = "dashingest"

// Info is the JSON form printed by `dashingest version --json`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build identity.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func shortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// String returns the long form used by the version command.
func String() string {
	info := GetInfo()
	if sha := shortCommit(); sha != "" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, sha, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// Short returns the version with an abbreviated commit, for --version.
func Short() string {
	if sha := shortCommit(); sha != "" {
		return fmt.Sprintf("%s (%s)", Version, sha)
	}
	return Version
}

// IsRelease reports whether this is a tagged release build.
func IsRelease() bool {
	return Version != "dev" && !strings.Contains(Version, "-SNAPSHOT")
}

// LogAttrs returns the build identity as a log group.
func LogAttrs() slog.Attr {
	info := GetInfo()
	return slog.Group("build",
		slog.String("version", info.Version),
		slog.String("commit", info.Commit),
		slog.String("go", info.GoVersion),
		slog.String("platform", info.Platform))
}
