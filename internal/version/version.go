// Package version carries build metadata stamped in at link time via
// -ldflags "-X github.com/sudotools/fleetwatch/internal/version.Version=...".
package version

var (
	// Version is the fleetwatch release version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
