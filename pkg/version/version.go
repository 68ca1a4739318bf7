// Package version holds the build version string.
package version

// Version is the application version. Overridden at build time via
// -ldflags "-X .../pkg/version.Version=x.y.z".
var Version = "1.0.0-dev"
