// ABOUTME: SwarmManager: the orchestrator owning every agent's descriptor, runtime, and conversation projection.
// ABOUTME: boot() restores agents.json, reparents orphaned workers onto the primary manager, and wakes runtimes.
package swarm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/draphael89/swarmd/internal/archetype"
	"github.com/draphael89/swarmd/internal/childproto"
	"github.com/draphael89/swarmd/internal/cwdpolicy"
	"github.com/draphael89/swarmd/internal/eventbus"
	"github.com/draphael89/swarmd/internal/runtime"
	"github.com/draphael89/swarmd/internal/session"
	"go.uber.org/zap"
)

// runtimeFactory creates a child runtime; tests substitute a fake to avoid
// spawning a real subprocess.
type runtimeFactory func(ctx context.Context, cfg runtime.Config, cb runtime.Callbacks) (*runtime.Runtime, error)

// toolBridgeFunc dispatches a child tool-call request that isn't speak_to_user.
type toolBridgeFunc func(ctx context.Context, agentID string, params childproto.ToolCallParams) (any, error)

// Config wires a Manager's dependencies and the primary manager's identity.
type Config struct {
	DataDir      string
	ChildCommand string
	ChildArgs    []string
	ChildEnv     []string

	CwdRoots   []string
	Archetypes *archetype.Registry
	Bus        *eventbus.Bus

	PrimaryManagerID   string
	PrimaryDisplayName string
	PrimaryCwd         string
	PrimaryModel       ModelSpec

	ConversationCapacity int
	ToolBridge           toolBridgeFunc
	Index                DescriptorIndex

	// Now and newRuntime are test seams; both default when unset.
	Now        func() time.Time
	newRuntime runtimeFactory
}

// AgentStatusEvent is the agent_status topic payload.
type AgentStatusEvent struct {
	Descriptor AgentDescriptor `json:"descriptor"`
}

// ConversationResetEvent is the conversation_reset topic payload.
type ConversationResetEvent struct {
	ManagerID string `json:"managerId"`
	Reason    string `json:"reason"`
}

func conversationResetEvent(managerID, reason string) eventbus.Event {
	return eventbus.Event{
		Topic:   eventbus.TopicConversationReset,
		Payload: ConversationResetEvent{ManagerID: managerID, Reason: reason},
	}
}

type agentHandle struct {
	descriptor AgentDescriptor
	rt         *runtime.Runtime
}

// DescriptorIndex is the rebuildable SQLite query cache
// (internal/store/index) kept in sync with every successful agents.json
// mutation. Declared here rather than imported to avoid a cycle — the index
// package imports swarm for AgentDescriptor, not the reverse.
type DescriptorIndex interface {
	Upsert(d AgentDescriptor) error
	Delete(agentID string) error
}

// Manager is the live in-process swarm: descriptors, runtimes, the shared
// conversation timeline, and the event bus they're all projected onto.
type Manager struct {
	cfg Config

	cwd        *cwdpolicy.Validator
	archetypes *archetype.Registry
	bus        *eventbus.Bus
	newRuntime runtimeFactory
	toolBridge toolBridgeFunc
	index      DescriptorIndex
	now        func() time.Time

	mu      sync.Mutex
	agents  map[string]*agentHandle
	primary string

	conversation *session.Ring
}

// New constructs a Manager without booting it; call Boot to restore state
// and start runtimes.
func New(cfg Config) (*Manager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("swarm: DataDir is required")
	}
	if cfg.PrimaryManagerID == "" {
		cfg.PrimaryManagerID = "primary"
	}
	if !ValidAgentID(cfg.PrimaryManagerID) {
		return nil, fmt.Errorf("swarm: invalid primary manager id %q", cfg.PrimaryManagerID)
	}
	if cfg.Bus == nil {
		cfg.Bus = eventbus.New()
	}
	if cfg.Archetypes == nil {
		cfg.Archetypes = archetype.Default()
	}
	if cfg.ConversationCapacity <= 0 {
		cfg.ConversationCapacity = 2000
	}

	roots := cfg.CwdRoots
	if len(roots) == 0 {
		roots = []string{cfg.PrimaryCwd}
	}
	validator, err := cwdpolicy.New(roots...)
	if err != nil {
		return nil, fmt.Errorf("swarm: cwd policy: %w", err)
	}

	m := &Manager{
		cfg:          cfg,
		cwd:          validator,
		archetypes:   cfg.Archetypes,
		bus:          cfg.Bus,
		newRuntime:   cfg.newRuntime,
		toolBridge:   cfg.ToolBridge,
		index:        cfg.Index,
		now:          cfg.Now,
		agents:       make(map[string]*agentHandle),
		primary:      cfg.PrimaryManagerID,
		conversation: session.NewRing(cfg.ConversationCapacity),
	}
	if m.newRuntime == nil {
		m.newRuntime = runtime.Create
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Boot restores agents.json, reparents orphaned workers onto the primary
// manager, creates the primary manager descriptor if none was persisted,
// and wakes a runtime for every non-terminated descriptor. A runtime that
// fails to wake is marked stopped_on_restart rather than aborting boot.
func (m *Manager) Boot(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := loadDescriptors(m.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("swarm: load agents.json: %w", err)
	}

	descriptors := make(map[string]AgentDescriptor, len(file.Agents))
	for _, d := range file.Agents {
		descriptors[d.AgentID] = d
	}

	if file.PrimaryManagerID != "" {
		m.primary = file.PrimaryManagerID
	}

	if _, ok := descriptors[m.primary]; !ok {
		descriptors[m.primary] = m.newPrimaryDescriptor()
	}

	// Reparent any worker whose managerId no longer resolves to a
	// non-terminated manager in this set.
	for id, d := range descriptors {
		if d.Role != RoleWorker {
			continue
		}
		owner, ok := descriptors[d.ManagerID]
		if !ok || owner.Role != RoleManager || owner.Status == StatusTerminated {
			d.ManagerID = m.primary
			d.UpdatedAt = m.now()
			descriptors[id] = d
		}
	}

	// Wake managers first, then workers, so ownership lookups during a
	// worker's own boot resolve against an already-live manager.
	order := make([]AgentDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		order = append(order, d)
	}
	order = sortedDescriptors(order, m.primary)

	for _, d := range order {
		if d.Status == StatusTerminated {
			m.agents[d.AgentID] = &agentHandle{descriptor: d}
			continue
		}
		rt, err := m.wakeRuntime(ctx, d)
		if err != nil {
			logger.Warn("wake agent failed", zap.String("agent_id", d.AgentID), zap.Error(err))
			d.Status = StatusStoppedOnRestart
			d.UpdatedAt = m.now()
			m.agents[d.AgentID] = &agentHandle{descriptor: d}
			continue
		}
		d.Status = StatusIdle
		d.UpdatedAt = m.now()
		m.agents[d.AgentID] = &agentHandle{descriptor: d, rt: rt}
	}

	if err := m.persistLocked(); err != nil {
		return fmt.Errorf("swarm: persist agents.json after boot: %w", err)
	}
	m.publishSnapshotLocked()
	return nil
}

func (m *Manager) newPrimaryDescriptor() AgentDescriptor {
	now := m.now()
	model := m.cfg.PrimaryModel
	if model.Provider == "" {
		model = ModelSpec{Provider: "anthropic", ModelID: "claude-sonnet-4-5"}
	}
	displayName := m.cfg.PrimaryDisplayName
	if displayName == "" {
		displayName = "Primary Manager"
	}
	return AgentDescriptor{
		AgentID:     m.primary,
		DisplayName: displayName,
		Role:        RoleManager,
		ManagerID:   m.primary,
		ArchetypeID: archetype.DefaultArchetypeID,
		Status:      StatusIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
		Cwd:         m.cfg.PrimaryCwd,
		Model:       model,
		SessionFile: session.DeriveSessionFile(m.cfg.DataDir, m.primary),
	}
}

func (m *Manager) wakeRuntime(ctx context.Context, d AgentDescriptor) (*runtime.Runtime, error) {
	prompt, err := m.archetypes.Prompt(d.ArchetypeID)
	if err != nil {
		prompt = ""
	}
	cfg := runtime.Config{
		AgentID:     d.AgentID,
		Cwd:         d.Cwd,
		Command:     m.cfg.ChildCommand,
		Args:        m.cfg.ChildArgs,
		Env:         m.cfg.ChildEnv,
		SessionPath: d.SessionFile,
		Thread: runtime.ThreadConfig{
			DeveloperInstructions: prompt,
		},
	}
	return m.newRuntime(ctx, cfg, m.callbacksFor(d.AgentID))
}

func (m *Manager) persistLocked() error {
	agents := make([]AgentDescriptor, 0, len(m.agents))
	for _, h := range m.agents {
		agents = append(agents, h.descriptor)
	}
	if err := saveDescriptors(m.cfg.DataDir, descriptorFile{
		PrimaryManagerID: m.primary,
		Agents:           agents,
	}); err != nil {
		return err
	}
	if m.index != nil {
		for _, d := range agents {
			if err := m.index.Upsert(d); err != nil {
				logger.Warn("descriptor index upsert failed", zap.String("agent_id", d.AgentID), zap.Error(err))
			}
		}
	}
	return nil
}

// dropFromIndexLocked removes a deleted agent's row from the query cache.
// Index errors are logged, not propagated: the cache is always rebuildable
// and must never block an in-memory mutation that already succeeded.
func (m *Manager) dropFromIndexLocked(agentID string) {
	if m.index == nil {
		return
	}
	if err := m.index.Delete(agentID); err != nil {
		logger.Warn("descriptor index delete failed", zap.String("agent_id", agentID), zap.Error(err))
	}
}

func (m *Manager) publishSnapshotLocked() {
	agents := make([]AgentDescriptor, 0, len(m.agents))
	for _, h := range m.agents {
		agents = append(agents, h.descriptor)
	}
	agents = sortedDescriptors(agents, m.primary)
	m.bus.Publish(eventbus.Event{Topic: eventbus.TopicAgentsSnapshot, Payload: agents})
}

func (m *Manager) publishStatusLocked(d AgentDescriptor) {
	m.bus.Publish(eventbus.Event{Topic: eventbus.TopicAgentStatus, Payload: AgentStatusEvent{Descriptor: d}})
}

// ListAgents returns a sorted snapshot of every known descriptor.
func (m *Manager) ListAgents() []AgentDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	agents := make([]AgentDescriptor, 0, len(m.agents))
	for _, h := range m.agents {
		agents = append(agents, h.descriptor)
	}
	return sortedDescriptors(agents, m.primary)
}

// ConversationHistory returns the current in-memory conversation ring.
func (m *Manager) ConversationHistory() []session.ConversationEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversation.Entries()
}

// ConversationHistoryFor returns the subset of the conversation ring
// attributed to agentID, preserving ring order.
func (m *Manager) ConversationHistoryFor(agentID string) []session.ConversationEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.conversation.Entries()
	out := make([]session.ConversationEntry, 0, len(all))
	for _, e := range all {
		if e.AgentID() == agentID {
			out = append(out, e)
		}
	}
	return out
}

// agentIDNormalizer strips anything outside the allowed charset.
var agentIDNormalizer = regexp.MustCompile(`[^a-z0-9-]+`)

// normalizeAgentID lowercases s, replaces disallowed runs with '-', trims
// leading/trailing '-', and truncates to the 48-char agentId limit.
func normalizeAgentID(s string) string {
	lower := strings.ToLower(s)
	norm := agentIDNormalizer.ReplaceAllString(lower, "-")
	norm = strings.Trim(norm, "-")
	if norm == "" {
		norm = "agent"
	}
	if len(norm) > 48 {
		norm = strings.Trim(norm[:48], "-")
	}
	return norm
}

// uniqueAgentIDLocked appends -2, -3, ... to base until it no longer collides
// with an existing descriptor, truncating base as needed to stay within
// the 48-char limit.
func (m *Manager) uniqueAgentIDLocked(base string) string {
	if _, exists := m.agents[base]; !exists {
		return base
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf("-%d", n)
		maxBase := 48 - len(suffix)
		candidateBase := base
		if len(candidateBase) > maxBase {
			candidateBase = strings.Trim(candidateBase[:maxBase], "-")
		}
		candidate := candidateBase + suffix
		if _, exists := m.agents[candidate]; !exists {
			return candidate
		}
	}
}
