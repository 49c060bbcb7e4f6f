// Package version holds build metadata injected at link time.
package version

var (
	// Version is the semantic version, set by the main package at startup
	// (Makefile LDFLAGS are the source of truth for releases).
	Version = "v1.2.0-dev"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
