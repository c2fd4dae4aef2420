// Package version holds build metadata, overridable with -ldflags "-X".
package version

var (
	AppName        = "Smart Secretary"
	AppDescription = "Answers direct messages while the owner is away"
	Version        = "dev"
	BuildDate      = "unknown"
)
