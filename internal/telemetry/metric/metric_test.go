package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewSet_RegistersWithoutPanic(t *testing.T) {
	s := NewSet()
	if s.Registry() == nil {
		t.Fatal("expected a registry")
	}

	// Touch a labeled metric to materialize a child
	s.Selections.WithLabelValues("least_loaded").Inc()
	s.MergeConflicts.WithLabelValues("lww").Add(2)
}

func TestHandler_ExposesMetrics(t *testing.T) {
	s := NewSet()
	s.RaftTerm.Set(7)
	s.GossipSent.Inc()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	out := string(body)
	for _, want := range []string{
		"memmesh_raft_current_term 7",
		"memmesh_gossip_messages_sent_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
