package app

import "fmt"

// Build information populated via -ldflags at build time.
var (
	BuildVersion = "0.0.0-dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// VersionString renders the build information for -version and logs.
func VersionString() string {
	return fmt.Sprintf("notionposts %s (commit %s, built %s)", BuildVersion, BuildCommit, BuildDate)
}
