// ABOUTME: Tests for descriptor sorting and agentId charset validation.
package swarm

import (
	"testing"
	"time"
)

func TestSortedDescriptorsOrdersPrimaryFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	descs := []AgentDescriptor{
		{AgentID: "worker-b", Role: RoleWorker, CreatedAt: base.Add(2 * time.Second)},
		{AgentID: "manager-2", Role: RoleManager, CreatedAt: base.Add(time.Second)},
		{AgentID: "worker-a", Role: RoleWorker, CreatedAt: base.Add(time.Second)},
		{AgentID: "primary", Role: RoleManager, CreatedAt: base},
	}

	sorted := sortedDescriptors(descs, "primary")

	want := []string{"primary", "manager-2", "worker-a", "worker-b"}
	for i, id := range want {
		if sorted[i].AgentID != id {
			t.Errorf("position %d: got %q, want %q", i, sorted[i].AgentID, id)
		}
	}
}

func TestValidAgentID(t *testing.T) {
	cases := map[string]bool{
		"primary":     true,
		"worker-2":    true,
		"Worker":      false,
		"worker_2":    false,
		"":            false,
	}
	for id, want := range cases {
		if got := ValidAgentID(id); got != want {
			t.Errorf("ValidAgentID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestNormalizeAgentID(t *testing.T) {
	cases := map[string]string{
		"Research Worker": "research-worker",
		"  Foo_Bar!! ":    "foo-bar",
		"":                "agent",
	}
	for in, want := range cases {
		if got := normalizeAgentID(in); got != want {
			t.Errorf("normalizeAgentID(%q) = %q, want %q", in, got, want)
		}
	}
}
