// Package version reports the build of the charoster binary. Values come
// from -ldflags when set and fall back to the VCS settings the Go toolchain
// embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	Modified  bool      `json:"modified"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
}

// Set at build time using -ldflags "-X github.com/conneroisu/charoster/internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type vcsInfo struct {
	module   string
	revision string
	time     time.Time
	modified bool
}

var (
	vcsOnce sync.Once
	vcs     vcsInfo
)

func readVCS() vcsInfo {
	vcsOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		vcs.module = info.Main.Version
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				vcs.revision = setting.Value
			case "vcs.time":
				vcs.time, _ = time.Parse(time.RFC3339, setting.Value)
			case "vcs.modified":
				vcs.modified = setting.Value == "true"
			}
		}
	})
	return vcs
}

// GetBuildInfo returns the build information of the running binary
func GetBuildInfo() *BuildInfo {
	built := GetBuildTime()
	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: built,
		Modified:  readVCS().modified,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// GetVersion returns the release version, the module version, or dev-<rev>
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	info := readVCS()
	if info.module != "" && info.module != "(devel)" {
		return info.module
	}
	if len(info.revision) >= 7 {
		return "dev-" + info.revision[:7]
	}
	return "dev"
}

// GetGitCommit returns the full commit hash or "unknown"
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := readVCS().revision; rev != "" {
		return rev
	}
	return "unknown"
}

// GetBuildTime returns the build time, zero when unknown
func GetBuildTime() time.Time {
	if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
		return t
	}
	return readVCS().time
}

// GetShortVersion returns a one-line version for display
func GetShortVersion() string {
	version := GetVersion()
	commit := GetGitCommit()
	if len(commit) < 7 || strings.HasPrefix(version, "dev-") {
		return version
	}
	if version == "dev" {
		return "dev-" + commit[:7]
	}
	return fmt.Sprintf("%s (%s)", version, commit[:7])
}

// GetDetailedVersion returns the build information one field per line
func GetDetailedVersion() string {
	info := GetBuildInfo()

	lines := []string{"Version: " + info.Version}
	if info.GitCommit != "unknown" {
		commit := info.GitCommit
		if info.Modified {
			commit += " (modified)"
		}
		lines = append(lines, "Commit: "+commit)
	}
	if !info.BuildTime.IsZero() {
		lines = append(lines, "Built: "+info.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "Go: "+info.GoVersion, "Platform: "+info.Platform)
	return strings.Join(lines, "\n")
}

// IsRelease reports whether the binary carries a release version
func IsRelease() bool {
	version := GetVersion()
	return version != "dev" && !strings.HasPrefix(version, "dev-")
}
