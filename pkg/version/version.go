// pkg/version/version.go
// Package version provides version metadata for the application.
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// These variables are typically injected at build time using -ldflags
var (
	// Version holds the current version of slimjob.
	Version = "dev"
	// Commit holds the current version commit of slimjob.
	Commit = "none"
	// BuildDate holds the build date of slimjob.
	BuildDate = "unknown"
)

// Struct returns version information in a structured format.
type Struct struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Os        string `json:"os"`
	Arch      string `json:"arch"`
	Release   bool   `json:"release"`
}

// Get returns version information as a Struct.
func Get() Struct {
	return Struct{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Os:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Release:   IsRelease(Version),
	}
}

// Parse parses v as a semantic version. A leading "v" is accepted.
func Parse(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("invalid version format '%s' (must be valid semver): %w", v, err)
	}
	return parsed, nil
}

// IsRelease reports whether v is a valid semantic version without a
// prerelease suffix. Development builds ("dev") are not releases.
func IsRelease(v string) bool {
	parsed, err := Parse(v)
	if err != nil {
		return false
	}
	return parsed.Prerelease() == ""
}
