// Package logger provides structured logging for memmesh.
//
// This package wraps log/slog for structured JSON logging:
//
//   - logger.go: logger configuration and initialization
//   - context.go: context-aware logging with request and node IDs
//   - redact.go: sensitive data redaction
//
// Features:
//
//   - JSON and text output formats
//   - Dynamic log level adjustment
//   - Automatic masking of cluster key material and capability tags
//   - Context propagation across federation RPC handlers
package logger
