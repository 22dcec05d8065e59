// ABOUTME: Tests for ownership checks, rejection paths, and slash-command parsing that don't require a live runtime.
package swarm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/draphael89/swarmd/internal/runtime"
	"github.com/draphael89/swarmd/internal/swarmerr"
)

func TestSameOwnership(t *testing.T) {
	manager := AgentDescriptor{AgentID: "mgr", Role: RoleManager}
	ownWorker := AgentDescriptor{AgentID: "w1", Role: RoleWorker, ManagerID: "mgr"}
	otherWorker := AgentDescriptor{AgentID: "w2", Role: RoleWorker, ManagerID: "other-mgr"}

	if !sameOwnership(manager, ownWorker) {
		t.Error("expected manager to own its own worker")
	}
	if !sameOwnership(ownWorker, manager) {
		t.Error("expected ownership check to be symmetric")
	}
	if sameOwnership(manager, otherWorker) {
		t.Error("expected manager not to own another manager's worker")
	}
}

func TestParseCompactCommand(t *testing.T) {
	if _, ok := parseCompactCommand("hello there"); ok {
		t.Error("expected non-command text to not match")
	}
	instructions, ok := parseCompactCommand("/compact keep recent decisions")
	if !ok {
		t.Fatal("expected /compact to match")
	}
	if instructions != "keep recent decisions" {
		t.Errorf("got instructions %q", instructions)
	}
	instructions, ok = parseCompactCommand("  /compact  ")
	if !ok || instructions != "" {
		t.Errorf("expected bare /compact to match with empty instructions, got ok=%v instructions=%q", ok, instructions)
	}
}

func failingFactory(ctx context.Context, cfg runtime.Config, cb runtime.Callbacks) (*runtime.Runtime, error) {
	return nil, errors.New("boom")
}

func managerHandle(id string) *agentHandle {
	now := time.Now()
	return &agentHandle{descriptor: AgentDescriptor{
		AgentID: id, Role: RoleManager, ManagerID: id, Status: StatusIdle,
		CreatedAt: now, UpdatedAt: now,
	}}
}

func TestSpawnAgentRejectsNonManagerCaller(t *testing.T) {
	m := newTestManager(t, Config{}, failingFactory)
	m.agents["worker-1"] = &agentHandle{descriptor: AgentDescriptor{
		AgentID: "worker-1", Role: RoleWorker, Status: StatusIdle,
	}}

	_, err := m.SpawnAgent(context.Background(), "worker-1", SpawnAgentInput{DisplayName: "sub"})
	if !errors.Is(err, swarmerr.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestSpawnAgentPropagatesRuntimeStartupFailure(t *testing.T) {
	m := newTestManager(t, Config{}, failingFactory)
	m.agents["mgr"] = managerHandle("mgr")

	_, err := m.SpawnAgent(context.Background(), "mgr", SpawnAgentInput{DisplayName: "sub"})
	if !errors.Is(err, swarmerr.ErrStartup) {
		t.Fatalf("expected ErrStartup, got %v", err)
	}
}

func TestKillAgentRejectsWrongOwner(t *testing.T) {
	m := newTestManager(t, Config{}, failingFactory)
	m.agents["mgr-a"] = managerHandle("mgr-a")
	m.agents["mgr-b"] = managerHandle("mgr-b")
	m.agents["worker-1"] = &agentHandle{descriptor: AgentDescriptor{
		AgentID: "worker-1", Role: RoleWorker, ManagerID: "mgr-b", Status: StatusIdle,
	}}

	err := m.KillAgent(context.Background(), "mgr-a", "worker-1")
	if !errors.Is(err, swarmerr.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestKillAgentRejectsTargetingAManager(t *testing.T) {
	m := newTestManager(t, Config{}, failingFactory)
	m.agents["mgr-a"] = managerHandle("mgr-a")
	m.agents["mgr-b"] = managerHandle("mgr-b")

	err := m.KillAgent(context.Background(), "mgr-a", "mgr-b")
	if !errors.Is(err, swarmerr.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestKillAgentSucceedsForOwnedWorker(t *testing.T) {
	m := newTestManager(t, Config{}, failingFactory)
	m.agents["mgr"] = managerHandle("mgr")
	m.agents["worker-1"] = &agentHandle{descriptor: AgentDescriptor{
		AgentID: "worker-1", Role: RoleWorker, ManagerID: "mgr", Status: StatusIdle,
	}}

	if err := m.KillAgent(context.Background(), "mgr", "worker-1"); err != nil {
		t.Fatalf("KillAgent: %v", err)
	}
	if m.agents["worker-1"].descriptor.Status != StatusTerminated {
		t.Errorf("expected worker-1 terminated, got %s", m.agents["worker-1"].descriptor.Status)
	}
}

func TestDeleteManagerRejectsDeletingSolePrimary(t *testing.T) {
	m := newTestManager(t, Config{PrimaryManagerID: "primary"}, failingFactory)
	m.primary = "primary"
	m.agents["primary"] = managerHandle("primary")

	err := m.DeleteManager(context.Background(), "primary", "primary")
	if !errors.Is(err, swarmerr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDeleteManagerAllowsDeletingPrimaryWhenAnotherExists(t *testing.T) {
	m := newTestManager(t, Config{PrimaryManagerID: "primary"}, failingFactory)
	m.primary = "primary"
	m.agents["primary"] = managerHandle("primary")
	m.agents["mgr-2"] = managerHandle("mgr-2")
	m.agents["worker-1"] = &agentHandle{descriptor: AgentDescriptor{
		AgentID: "worker-1", Role: RoleWorker, ManagerID: "primary", Status: StatusIdle,
	}}

	if err := m.DeleteManager(context.Background(), "mgr-2", "primary"); err != nil {
		t.Fatalf("DeleteManager: %v", err)
	}
	if _, ok := m.agents["primary"]; ok {
		t.Error("expected primary manager removed")
	}
	if _, ok := m.agents["worker-1"]; ok {
		t.Error("expected primary's worker removed along with it")
	}
}

func TestSendMessageRejectsCrossManagerAddressing(t *testing.T) {
	m := newTestManager(t, Config{}, failingFactory)
	m.agents["mgr-a"] = managerHandle("mgr-a")
	m.agents["worker-b"] = &agentHandle{
		descriptor: AgentDescriptor{AgentID: "worker-b", Role: RoleWorker, ManagerID: "mgr-b", Status: StatusIdle},
		rt:         nil,
	}
	// worker-b has no live runtime, but ownership is checked before the
	// not-running check would otherwise short-circuit with a different error.
	m.agents["worker-b"].rt = nil

	_, err := m.SendMessage(context.Background(), "mgr-a", "worker-b", "hi", nil, runtime.ModeAuto, false)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestStageUserAttachmentsSeparatesImagesFromBinaryData(t *testing.T) {
	m := newTestManager(t, Config{}, failingFactory)
	staged, images, err := m.stageUserAttachments("primary", []RawAttachment{
		{FileName: "photo.png", MimeType: "image/png", Base64: "Zm9v"},
		{FileName: "notes.txt", MimeType: "text/plain", Base64: "YmFy"},
	})
	if err != nil {
		t.Fatalf("stageUserAttachments: %v", err)
	}
	if len(images) != 1 || images[0].Mime != "image/png" {
		t.Fatalf("images = %+v", images)
	}
	if len(staged) != 1 || staged[0].FileName != "notes.txt" || staged[0].Path == "" {
		t.Fatalf("staged = %+v", staged)
	}
}

func TestHandleUserMessageRejectsUnknownTarget(t *testing.T) {
	m := newTestManager(t, Config{}, failingFactory)
	err := m.HandleUserMessage(context.Background(), "hello", UserMessageOptions{TargetAgentID: "nope"})
	if !errors.Is(err, swarmerr.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}
