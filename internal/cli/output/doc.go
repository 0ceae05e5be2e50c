// Package output provides output formatting for memmesh-cli.
//
// This package handles all CLI output formatting:
//
//   - formatter.go: Formatter interface and factory
//   - table.go: Table rendering with wide mode support
//   - json.go: JSON output formatting
//   - yaml.go: YAML output formatting
//
// Commands build Table values for human output; the JSON and YAML
// formatters render the underlying data untouched so the output stays
// machine-readable for scripting.
package output
