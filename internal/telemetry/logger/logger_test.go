// Package logger tests.
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Info("node registered", "node_id", "mmnode-01")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if entry["msg"] != "node registered" {
		t.Errorf("msg = %v, want %q", entry["msg"], "node registered")
	}
	if entry["node_id"] != "mmnode-01" {
		t.Errorf("node_id = %v, want %q", entry["node_id"], "mmnode-01")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Debug("should not appear")
	log.Info("should not appear either")

	if buf.Len() != 0 {
		t.Errorf("expected no output below warn level, got %q", buf.String())
	}

	log.Warn("visible")
	if buf.Len() == 0 {
		t.Error("warn entry missing")
	}
}

func TestSetLevel_Dynamic(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	SetLevel("error")
	defer SetLevel("info")

	log.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info entry written after SetLevel(error): %q", buf.String())
	}

	if got := GetLevel(); got != "error" {
		t.Errorf("GetLevel() = %q, want %q", got, "error")
	}
}

func TestRedact_ClusterKeyValue(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("joining", "key", "mmck_0123456789abcdef")

	out := buf.String()
	if strings.Contains(out, "0123456789abcdef") {
		t.Errorf("cluster key leaked in output: %q", out)
	}
	if !strings.Contains(out, "mmck_") {
		t.Errorf("masked value should keep prefix, got %q", out)
	}
}

func TestRedact_SensitiveKeyName(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("peer metadata", "capability_tag", "tier-gold")

	if strings.Contains(buf.String(), "tier-gold") {
		t.Errorf("capability tag leaked in output: %q", buf.String())
	}
}

func TestContext_RequestAndNodeID(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithNodeID(ctx, "mmnode-peer")

	if got := RequestIDFromContext(ctx); got != "req-42" {
		t.Errorf("RequestIDFromContext = %q, want %q", got, "req-42")
	}
	if got := NodeIDFromContext(ctx); got != "mmnode-peer" {
		t.Errorf("NodeIDFromContext = %q, want %q", got, "mmnode-peer")
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"cluster_key", true},
		{"Capability", true},
		{"node_id", false},
		{"addr", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsSensitiveKey(tt.key); got != tt.want {
				t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
