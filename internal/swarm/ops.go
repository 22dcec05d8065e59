// ABOUTME: SwarmManager mutating operations: spawn/kill agents, create/delete managers, message routing, reset, compact.
// ABOUTME: Grounded on spec.md §4.4's operation list; ownership and cwd-allowlist checks gate every mutation.
package swarm

import (
	"context"
	"fmt"
	"strings"

	"github.com/draphael89/swarmd/internal/runtime"
	"github.com/draphael89/swarmd/internal/session"
	"github.com/draphael89/swarmd/internal/swarmerr"
)

// defaultWorkerPrompt is used when a worker has no archetypeId and no
// explicit override: a plain worker with no specialized instructions.
const defaultWorkerPrompt = `You are a worker agent in a swarm. Complete the task your manager
assigned, report results clearly, and ask for clarification only when genuinely blocked.`

// SpawnAgentInput describes a new worker to create under an owning manager.
type SpawnAgentInput struct {
	DisplayName          string
	ArchetypeID          string
	Cwd                  string
	Model                ModelSpec
	SystemPromptOverride string
	InitialMessage       string
}

// SpawnAgent creates a worker owned by callerAgentID, which must be a
// running manager. The worker's cwd must resolve within the configured
// allowlist. If InitialMessage is set, it's dispatched immediately as an
// internal-origin prompt once the runtime is live.
func (m *Manager) SpawnAgent(ctx context.Context, callerAgentID string, input SpawnAgentInput) (AgentDescriptor, error) {
	m.mu.Lock()

	caller, ok := m.agents[callerAgentID]
	if !ok || caller.descriptor.Role != RoleManager || caller.descriptor.Status == StatusTerminated {
		m.mu.Unlock()
		return AgentDescriptor{}, fmt.Errorf("%w: caller %q is not a running manager", swarmerr.ErrPermission, callerAgentID)
	}

	cwd := input.Cwd
	if cwd == "" {
		cwd = caller.descriptor.Cwd
	}
	resolvedCwd, err := m.cwd.Validate(cwd)
	if err != nil {
		m.mu.Unlock()
		return AgentDescriptor{}, fmt.Errorf("%w: %s", swarmerr.ErrValidation, err)
	}

	model := input.Model
	if model.Provider == "" {
		model = caller.descriptor.Model
	}

	displayName := input.DisplayName
	if displayName == "" {
		displayName = "Worker"
	}
	agentID := m.uniqueAgentIDLocked(normalizeAgentID(displayName))

	prompt := input.SystemPromptOverride
	if prompt == "" {
		if input.ArchetypeID != "" && m.archetypes.Has(input.ArchetypeID) {
			prompt, _ = m.archetypes.Prompt(input.ArchetypeID)
		} else {
			prompt = defaultWorkerPrompt
		}
	}

	now := m.now()
	descriptor := AgentDescriptor{
		AgentID:     agentID,
		DisplayName: displayName,
		Role:        RoleWorker,
		ManagerID:   callerAgentID,
		ArchetypeID: input.ArchetypeID,
		Status:      StatusIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
		Cwd:         resolvedCwd,
		Model:       model,
		SessionFile: session.DeriveSessionFile(m.cfg.DataDir, agentID),
	}
	m.mu.Unlock()

	rtCfg := runtime.Config{
		AgentID:     agentID,
		Cwd:         resolvedCwd,
		Command:     m.cfg.ChildCommand,
		Args:        m.cfg.ChildArgs,
		Env:         m.cfg.ChildEnv,
		SessionPath: descriptor.SessionFile,
		Thread:      runtime.ThreadConfig{DeveloperInstructions: prompt},
	}
	rt, err := m.newRuntime(ctx, rtCfg, m.callbacksFor(agentID))
	if err != nil {
		return AgentDescriptor{}, fmt.Errorf("%w: spawn runtime: %s", swarmerr.ErrStartup, err)
	}

	m.mu.Lock()
	m.agents[agentID] = &agentHandle{descriptor: descriptor, rt: rt}
	persistErr := m.persistLocked()
	m.publishStatusLocked(descriptor)
	m.publishSnapshotLocked()
	m.mu.Unlock()
	if persistErr != nil {
		return descriptor, fmt.Errorf("spawn succeeded but persist failed: %w", persistErr)
	}

	if input.InitialMessage != "" {
		if _, err := rt.SendMessage(ctx, input.InitialMessage, nil, runtime.ModePrompt); err != nil {
			return descriptor, fmt.Errorf("spawn succeeded but initial message failed: %w", err)
		}
	}

	return descriptor, nil
}

// KillAgent terminates a worker owned by callerAgentID. Managers cannot be
// killed through this operation; use DeleteManager instead.
func (m *Manager) KillAgent(ctx context.Context, callerAgentID, targetAgentID string) error {
	m.mu.Lock()
	caller, ok := m.agents[callerAgentID]
	if !ok || caller.descriptor.Role != RoleManager {
		m.mu.Unlock()
		return fmt.Errorf("%w: caller %q is not a manager", swarmerr.ErrPermission, callerAgentID)
	}
	target, ok := m.agents[targetAgentID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: agent %q", swarmerr.ErrNotFound, targetAgentID)
	}
	if target.descriptor.Role != RoleWorker {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q is a manager; use DeleteManager", swarmerr.ErrPermission, targetAgentID)
	}
	if target.descriptor.ManagerID != callerAgentID {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q does not own %q", swarmerr.ErrPermission, callerAgentID, targetAgentID)
	}
	rt := target.rt
	m.mu.Unlock()

	if rt != nil {
		rt.Terminate(ctx, true)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	target.descriptor.Status = StatusTerminated
	target.descriptor.UpdatedAt = m.now()
	target.rt = nil
	m.publishStatusLocked(target.descriptor)
	err := m.persistLocked()
	m.publishSnapshotLocked()
	return err
}

// CreateManagerInput describes a new manager to create.
type CreateManagerInput struct {
	DisplayName string
	Cwd         string
	Model       ModelSpec
	ArchetypeID string
}

// CreateManager creates a new manager agent. callerAgentID must either be a
// running manager or be the primary manager's id; the primary is accepted
// even when it is not a running manager.
func (m *Manager) CreateManager(ctx context.Context, callerAgentID string, input CreateManagerInput) (AgentDescriptor, error) {
	m.mu.Lock()

	caller, ok := m.agents[callerAgentID]
	if !ok {
		m.mu.Unlock()
		return AgentDescriptor{}, fmt.Errorf("%w: caller %q", swarmerr.ErrNotFound, callerAgentID)
	}
	if caller.descriptor.Role != RoleManager || caller.descriptor.Status == StatusTerminated {
		if callerAgentID != m.primary {
			m.mu.Unlock()
			return AgentDescriptor{}, fmt.Errorf("%w: caller %q is not a running manager", swarmerr.ErrPermission, callerAgentID)
		}
	}

	cwd := input.Cwd
	if cwd == "" {
		cwd = caller.descriptor.Cwd
	}
	resolvedCwd, err := m.cwd.Validate(cwd)
	if err != nil {
		m.mu.Unlock()
		return AgentDescriptor{}, fmt.Errorf("%w: %s", swarmerr.ErrValidation, err)
	}

	model := input.Model
	if model.Provider == "" {
		model = caller.descriptor.Model
	}
	archetypeID := input.ArchetypeID
	if archetypeID == "" {
		archetypeID = "manager"
	}
	displayName := input.DisplayName
	if displayName == "" {
		displayName = "Manager"
	}
	agentID := m.uniqueAgentIDLocked(normalizeAgentID(displayName))

	prompt, err := m.archetypes.Prompt(archetypeID)
	if err != nil {
		prompt, _ = m.archetypes.Prompt(DefaultManagerArchetypeFallback)
	}

	now := m.now()
	descriptor := AgentDescriptor{
		AgentID:     agentID,
		DisplayName: displayName,
		Role:        RoleManager,
		ManagerID:   agentID,
		ArchetypeID: archetypeID,
		Status:      StatusIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
		Cwd:         resolvedCwd,
		Model:       model,
		SessionFile: session.DeriveSessionFile(m.cfg.DataDir, agentID),
	}
	m.mu.Unlock()

	rtCfg := runtime.Config{
		AgentID:     agentID,
		Cwd:         resolvedCwd,
		Command:     m.cfg.ChildCommand,
		Args:        m.cfg.ChildArgs,
		Env:         m.cfg.ChildEnv,
		SessionPath: descriptor.SessionFile,
		Thread:      runtime.ThreadConfig{DeveloperInstructions: prompt},
	}
	rt, err := m.newRuntime(ctx, rtCfg, m.callbacksFor(agentID))
	if err != nil {
		return AgentDescriptor{}, fmt.Errorf("%w: create manager runtime: %s", swarmerr.ErrStartup, err)
	}

	m.mu.Lock()
	m.agents[agentID] = &agentHandle{descriptor: descriptor, rt: rt}
	persistErr := m.persistLocked()
	m.publishStatusLocked(descriptor)
	m.publishSnapshotLocked()
	m.mu.Unlock()
	if persistErr != nil {
		return descriptor, fmt.Errorf("create manager succeeded but persist failed: %w", persistErr)
	}
	return descriptor, nil
}

// DefaultManagerArchetypeFallback is used if a requested archetypeId is unknown.
const DefaultManagerArchetypeFallback = "manager"

// DeleteManager terminates targetManagerID and every worker it owns. The
// primary manager can only be deleted while at least one other manager
// exists to take over orchestration.
func (m *Manager) DeleteManager(ctx context.Context, callerAgentID, targetManagerID string) error {
	m.mu.Lock()
	caller, ok := m.agents[callerAgentID]
	if !ok || caller.descriptor.Role != RoleManager {
		m.mu.Unlock()
		return fmt.Errorf("%w: caller %q is not a manager", swarmerr.ErrPermission, callerAgentID)
	}
	target, ok := m.agents[targetManagerID]
	if !ok || target.descriptor.Role != RoleManager {
		m.mu.Unlock()
		return fmt.Errorf("%w: manager %q", swarmerr.ErrNotFound, targetManagerID)
	}
	if targetManagerID == m.primary {
		otherManagerExists := false
		for id, h := range m.agents {
			if id != m.primary && h.descriptor.Role == RoleManager && h.descriptor.Status != StatusTerminated {
				otherManagerExists = true
				break
			}
		}
		if !otherManagerExists {
			m.mu.Unlock()
			return fmt.Errorf("%w: cannot delete the primary manager with no other manager present", swarmerr.ErrValidation)
		}
	}

	var workerRuntimes []*agentHandle
	for _, h := range m.agents {
		if h.descriptor.Role == RoleWorker && h.descriptor.ManagerID == targetManagerID {
			workerRuntimes = append(workerRuntimes, h)
		}
	}
	targetRT := target.rt
	m.mu.Unlock()

	for _, h := range workerRuntimes {
		if h.rt != nil {
			h.rt.Terminate(ctx, true)
		}
	}
	if targetRT != nil {
		targetRT.Terminate(ctx, true)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range workerRuntimes {
		delete(m.agents, h.descriptor.AgentID)
		m.dropFromIndexLocked(h.descriptor.AgentID)
	}
	delete(m.agents, targetManagerID)
	m.dropFromIndexLocked(targetManagerID)
	err := m.persistLocked()
	m.publishSnapshotLocked()
	return err
}

// SendMessage delivers text (with optional image attachments) from
// fromAgentID to targetAgentID. A manager may only address its own
// workers; workers address only their owning manager, handled the same
// way since ownership is symmetric under ManagerID equality.
func (m *Manager) SendMessage(ctx context.Context, fromAgentID, targetAgentID, text string, images []runtime.Attachment, mode runtime.DeliveryMode, userOrigin bool) (runtime.SendReceipt, error) {
	m.mu.Lock()
	from, ok := m.agents[fromAgentID]
	if !ok || from.descriptor.Status == StatusTerminated {
		m.mu.Unlock()
		return runtime.SendReceipt{}, fmt.Errorf("%w: sender %q", swarmerr.ErrNotFound, fromAgentID)
	}
	target, ok := m.agents[targetAgentID]
	if !ok {
		m.mu.Unlock()
		return runtime.SendReceipt{}, fmt.Errorf("%w: target %q is not running", swarmerr.ErrNotRunning, targetAgentID)
	}
	if !sameOwnership(from.descriptor, target.descriptor) {
		m.mu.Unlock()
		return runtime.SendReceipt{}, fmt.Errorf("%w: %q may not address %q", swarmerr.ErrPermission, fromAgentID, targetAgentID)
	}
	if target.descriptor.Status == StatusTerminated || target.rt == nil {
		m.mu.Unlock()
		return runtime.SendReceipt{}, fmt.Errorf("%w: target %q is not running", swarmerr.ErrNotRunning, targetAgentID)
	}
	rt := target.rt
	m.mu.Unlock()

	body := text
	if !userOrigin && text != "" && !strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "system:") {
		body = "SYSTEM: " + text
	}

	return rt.SendMessage(ctx, body, images, mode)
}

// sameOwnership reports whether a and b may address each other directly: a
// manager and its own worker, or the reverse.
func sameOwnership(a, b AgentDescriptor) bool {
	if a.Role == RoleManager && b.Role == RoleWorker {
		return b.ManagerID == a.AgentID
	}
	if a.Role == RoleWorker && b.Role == RoleManager {
		return a.ManagerID == b.AgentID
	}
	return a.AgentID == b.AgentID
}

// UserMessageOptions carries an optional explicit target, source channel
// metadata, and any attachments still awaiting staging (text is inlined,
// binary data is written under dataDir/attachments, images are forwarded to
// the runtime as image parts).
type UserMessageOptions struct {
	TargetAgentID  string
	SourceContext  *session.SourceContext
	Attachments    []session.Attachment
	RawAttachments []RawAttachment
}

// HandleUserMessage routes a message from the human into the swarm: it
// defaults to the primary manager, stages any attachments, always records
// the text as a user-visible conversation_message, and special-cases the
// "/compact" slash command on a manager target.
func (m *Manager) HandleUserMessage(ctx context.Context, text string, opts UserMessageOptions) error {
	target := opts.TargetAgentID
	if target == "" {
		target = m.primary
	}

	staged, images, err := m.stageUserAttachments(target, opts.RawAttachments)
	if err != nil {
		return err
	}
	attachments := append(append([]session.Attachment{}, opts.Attachments...), staged...)

	m.mu.Lock()
	h, ok := m.agents[target]
	if !ok || h.descriptor.Status == StatusTerminated {
		m.mu.Unlock()
		return fmt.Errorf("%w: target %q is not running", swarmerr.ErrNotRunning, target)
	}
	role := h.descriptor.Role
	now := m.now()
	m.appendMessageLocked(session.MessageEntry{
		Agent:         target,
		Text:          text,
		Source:        session.SourceUserInput,
		SourceContext: opts.SourceContext,
		Attachments:   attachments,
		TimestampUnix: now.Unix(),
	})
	m.mu.Unlock()

	if role == RoleManager && len(attachments) == 0 {
		if instructions, isCompact := parseCompactCommand(text); isCompact {
			return m.CompactAgentContext(ctx, target, instructions)
		}
	}

	if role == RoleWorker {
		receipt, err := m.SendMessage(ctx, h.descriptor.ManagerID, target, text, images, runtime.ModeAuto, true)
		_ = receipt
		return err
	}

	m.mu.Lock()
	rt := h.rt
	m.mu.Unlock()
	_, err = rt.SendMessage(ctx, text, images, runtime.ModeSteer)
	return err
}

// stageUserAttachments splits raw into staged session.Attachments (for the
// conversation log) and runtime.Attachment image parts (for the child's
// image InputParts), writing any binary, non-image data to disk.
func (m *Manager) stageUserAttachments(targetAgentID string, raw []RawAttachment) ([]session.Attachment, []runtime.Attachment, error) {
	if len(raw) == 0 {
		return nil, nil, nil
	}

	var images []runtime.Attachment
	var toStage []RawAttachment
	for _, r := range raw {
		if strings.HasPrefix(r.MimeType, "image/") && r.Base64 != "" {
			images = append(images, runtime.Attachment{Mime: r.MimeType, Base64: r.Base64})
			continue
		}
		toStage = append(toStage, r)
	}

	staged, err := stageAttachments(m.cfg.DataDir, targetAgentID, newBatchID(), toStage)
	if err != nil {
		return nil, nil, err
	}
	return staged, images, nil
}

// parseCompactCommand reports whether text is a "/compact" slash command
// and extracts any trailing custom instructions.
func parseCompactCommand(text string) (instructions string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/compact") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "/compact"))
	return rest, true
}

// ResetManagerSession terminates managerID's runtime, clears its persisted
// session, and starts a fresh runtime in its place.
func (m *Manager) ResetManagerSession(ctx context.Context, managerID, reason string) error {
	m.mu.Lock()
	h, ok := m.agents[managerID]
	if !ok || h.descriptor.Role != RoleManager {
		m.mu.Unlock()
		return fmt.Errorf("%w: manager %q", swarmerr.ErrNotFound, managerID)
	}
	descriptor := h.descriptor
	rt := h.rt
	m.mu.Unlock()

	if rt != nil {
		rt.Terminate(ctx, true)
	}
	_ = session.ResetSessionFile(descriptor.SessionFile)

	prompt, err := m.archetypes.Prompt(descriptor.ArchetypeID)
	if err != nil {
		prompt = ""
	}
	rtCfg := runtime.Config{
		AgentID:     descriptor.AgentID,
		Cwd:         descriptor.Cwd,
		Command:     m.cfg.ChildCommand,
		Args:        m.cfg.ChildArgs,
		Env:         m.cfg.ChildEnv,
		SessionPath: descriptor.SessionFile,
		Thread:      runtime.ThreadConfig{DeveloperInstructions: prompt},
	}
	newRT, err := m.newRuntime(ctx, rtCfg, m.callbacksFor(descriptor.AgentID))
	if err != nil {
		return fmt.Errorf("%w: restart manager runtime: %s", swarmerr.ErrStartup, err)
	}

	m.mu.Lock()
	descriptor.Status = StatusIdle
	descriptor.UpdatedAt = m.now()
	m.agents[managerID] = &agentHandle{descriptor: descriptor, rt: newRT}
	m.conversation = session.NewRing(m.cfg.ConversationCapacity)
	persistErr := m.persistLocked()
	m.bus.Publish(conversationResetEvent(managerID, reason))
	m.publishStatusLocked(descriptor)
	m.publishSnapshotLocked()
	m.mu.Unlock()
	return persistErr
}

// CompactAgentContext asks a manager's runtime to compact its conversation
// context, narrating the attempt and its outcome as system messages.
func (m *Manager) CompactAgentContext(ctx context.Context, agentID, customInstructions string) error {
	m.mu.Lock()
	h, ok := m.agents[agentID]
	if !ok || h.descriptor.Role != RoleManager || h.rt == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: agent %q is not a running manager", swarmerr.ErrPermission, agentID)
	}
	rt := h.rt
	m.appendMessageLocked(session.MessageEntry{
		Agent: agentID, Text: "Compacting conversation context...",
		Source: session.SourceSystem, TimestampUnix: m.now().Unix(),
	})
	m.mu.Unlock()

	err := rt.Compact(ctx, customInstructions)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.appendMessageLocked(session.MessageEntry{
			Agent: agentID, Text: fmt.Sprintf("Compaction failed: %s", err),
			Source: session.SourceSystem, TimestampUnix: m.now().Unix(),
		})
		return err
	}
	m.appendMessageLocked(session.MessageEntry{
		Agent: agentID, Text: "Compaction complete.",
		Source: session.SourceSystem, TimestampUnix: m.now().Unix(),
	})
	return nil
}
