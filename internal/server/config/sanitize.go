package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	// Create a shallow copy
	sanitized := *cfg

	// Mask sensitive fields
	if sanitized.Security.ClusterKey != "" {
		sanitized.Security.ClusterKey = maskSecret(sanitized.Security.ClusterKey)
	}
	if strings.HasPrefix(sanitized.Federation.Capability, "mmct_") {
		sanitized.Federation.Capability = maskSecret(sanitized.Federation.Capability)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
