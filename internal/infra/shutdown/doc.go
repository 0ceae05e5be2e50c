// Package shutdown coordinates graceful teardown of the memmesh
// server process.
//
// A Handler collects cleanup hooks and runs them, newest first, when
// SIGINT or SIGTERM arrives or Trigger is called. All hooks share one
// deadline so a stuck component cannot stall the process forever.
//
// Files:
//
//   - shutdown.go: the Handler
package shutdown
