package buildinfo

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGetReflectsBuildVariables(t *testing.T) {
	info := Get()

	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.Commit != Commit {
		t.Errorf("Commit = %q, want %q", info.Commit, Commit)
	}
	if info.BuildTime != BuildTime {
		t.Errorf("BuildTime = %q, want %q", info.BuildTime, BuildTime)
	}
}

func TestStringFormat(t *testing.T) {
	want := Version + " (" + Commit + ") built at " + BuildTime
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestInfoJSONFieldNames(t *testing.T) {
	// The CLI prints this struct; field names are part of its output.
	data, err := json.Marshal(Get())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{"version", "commit", "build_time", "go_version"} {
		if !strings.Contains(string(data), `"`+field+`"`) {
			t.Errorf("JSON output missing field %q: %s", field, data)
		}
	}
}
