// Package version carries the build identity stamped into reports and
// stored runs. The values are set with -ldflags at release time.
package version

import "fmt"

var (
	// Version is the release, e.g. "0.4.0"
	Version = "dev"
	// GitSHA is the commit the binary was built from
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the identity of the named command.
func String(command string) string {
	return fmt.Sprintf("%s %s (git %s, built %s)", command, Version, GitSHA, BuildTime)
}
