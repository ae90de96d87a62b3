// Package version provides build-time version information.
package version

import "fmt"

var (
	// Version is the semantic version, set via ldflags.
	Version = "dev"
	// Commit is the short git commit hash, set via ldflags.
	Commit = "unknown"
	// GitTime is the commit timestamp in ISO 8601 UTC format, set via ldflags.
	GitTime = "unknown"
)

// String returns the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, GitTime)
}

// UserAgent returns the User-Agent header sent to the contents API.
func UserAgent() string {
	return "sitesync/" + Version
}
