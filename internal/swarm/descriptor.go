// ABOUTME: AgentDescriptor: identity, topology, state, and placement for one agent in the swarm tree.
// ABOUTME: Grounded on spec.md §3's data model; sortedDescriptors implements the §8 on-disk ordering invariant.
package swarm

import (
	"regexp"
	"sort"
	"time"
)

// Role enumerates the two positions an agent can occupy in the tree.
type Role string

const (
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
)

// Status enumerates an agent's lifecycle state.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusStreaming        Status = "streaming"
	StatusTerminated       Status = "terminated"
	StatusStoppedOnRestart Status = "stopped_on_restart"
)

// ModelSpec identifies the LLM backing an agent.
type ModelSpec struct {
	Provider      string `json:"provider"`
	ModelID       string `json:"modelId"`
	ThinkingLevel string `json:"thinkingLevel,omitempty"`
}

// ContextUsage mirrors the agent's live token/window telemetry into status events.
type ContextUsage struct {
	Tokens        int `json:"tokens"`
	ContextWindow int `json:"contextWindow"`
}

// AgentDescriptor is the persisted identity/topology/state/placement record
// for one agent, per spec.md §3.
type AgentDescriptor struct {
	AgentID     string `json:"agentId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`

	ManagerID   string `json:"managerId"`
	ArchetypeID string `json:"archetypeId,omitempty"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Cwd         string    `json:"cwd"`
	Model       ModelSpec `json:"model"`
	SessionFile string    `json:"sessionFile"`

	ContextUsage *ContextUsage `json:"contextUsage,omitempty"`
}

// agentIDPattern enforces the normalized agentId charset of spec.md §3.
var agentIDPattern = regexp.MustCompile(`^[a-z0-9-]{1,48}$`)

// ValidAgentID reports whether id matches the normalized agentId charset.
func ValidAgentID(id string) bool {
	return agentIDPattern.MatchString(id)
}

// sortedDescriptors orders descriptors: the primary manager first, then
// other managers, then workers, each group ordered by createdAt then
// agentId. This is the exact shape persisted to agents.json after every
// successful mutation (spec.md §8).
func sortedDescriptors(descs []AgentDescriptor, primaryManagerID string) []AgentDescriptor {
	out := make([]AgentDescriptor, len(descs))
	copy(out, descs)

	rank := func(d AgentDescriptor) int {
		switch {
		case d.AgentID == primaryManagerID:
			return 0
		case d.Role == RoleManager:
			return 1
		default:
			return 2
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}
