// Package command provides CLI command definitions for memmesh-cli.
//
// It uses urfave/cli/v2 for command parsing. Commands talk to a
// node's admin HTTP surface through the client package and render
// results through the output package.
//
// Files:
//   - root.go: application assembly and global flags
//   - status.go: node status and leader lookup
//   - members.go: membership table and node selection
//   - kv.go: replicated key-value operations
package command
