// Package version provides version information.
package version

// Version is set at build time via -ldflags "-X github.com/tarmount/tarmount/internal/version.Version=<value>"
// The default is a development placeholder.
var Version = "v0.5.0"

// IndexFormat is the version of the on-disk SQLite index layout. The minor
// component is bumped whenever columns are added (e.g. sparse support); an
// index recorded with an older major.minor is rebuilt.
var IndexFormat = "0.2.0"
