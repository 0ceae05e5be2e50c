// Package buildinfo exposes the version stamp baked into memmesh
// binaries at build time.
//
// The release build injects Version, Commit, BuildTime and GoVersion
// via -ldflags; development builds report "dev". Both binaries print
// String() for their --version flags.
package buildinfo
