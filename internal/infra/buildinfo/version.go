package buildinfo

import (
	"runtime/debug"
	"strings"
)

// Build-time variables (set via ldflags).
var (
	// Version is the semantic version.
	Version = "dev"

	// Commit is the git commit hash.
	Commit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"

	// GoVersion is the Go version used to build. When unset it is read
	// from the embedded module build info.
	GoVersion = ""
)

// Info contains build information.
type Info struct {
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
	GoVersion   string `json:"go_version"`
	Fingerprint string `json:"fingerprint"`
}

// Get returns the build information.
func Get() Info {
	return Info{
		Version:     Version,
		Commit:      Commit,
		BuildTime:   BuildTime,
		GoVersion:   goVersion(),
		Fingerprint: Fingerprint(),
	}
}

// Fingerprint identifies this build in the version file. It is the
// semicolon-joined version, commit and build time.
func Fingerprint() string {
	return strings.Join([]string{Version, Commit, BuildTime}, ";")
}

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built at " + BuildTime
}

func goVersion() string {
	if GoVersion != "" {
		return GoVersion
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.GoVersion != "" {
		return bi.GoVersion
	}
	return "unknown"
}
