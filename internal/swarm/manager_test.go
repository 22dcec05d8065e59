// ABOUTME: Tests for Manager construction and Boot's restore/reparent/stopped_on_restart bookkeeping.
package swarm

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/draphael89/swarmd/internal/runtime"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestManager(t *testing.T, cfg Config, factory runtimeFactory) *Manager {
	t.Helper()
	cfg.DataDir = t.TempDir()
	if cfg.PrimaryCwd == "" {
		cfg.PrimaryCwd = cfg.DataDir
	}
	cfg.newRuntime = factory
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestNewRejectsMissingDataDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing DataDir")
	}
}

func TestNewRejectsInvalidPrimaryManagerID(t *testing.T) {
	_, err := New(Config{DataDir: t.TempDir(), PrimaryManagerID: "Not Valid!"})
	if err == nil {
		t.Fatal("expected error for invalid primary manager id")
	}
}

func TestBootCreatesPrimaryWhenAgentsFileMissing(t *testing.T) {
	m := newTestManager(t, Config{}, func(ctx context.Context, cfg runtime.Config, cb runtime.Callbacks) (*runtime.Runtime, error) {
		return nil, nil
	})

	if err := m.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}

	agents := m.ListAgents()
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent after boot, got %d", len(agents))
	}
	if agents[0].AgentID != "primary" || agents[0].Role != RoleManager {
		t.Errorf("unexpected primary descriptor: %+v", agents[0])
	}
}

func TestBootMarksStoppedOnRestartWhenRuntimeFails(t *testing.T) {
	m := newTestManager(t, Config{}, func(ctx context.Context, cfg runtime.Config, cb runtime.Callbacks) (*runtime.Runtime, error) {
		return nil, errors.New("spawn failed")
	})

	if err := m.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}

	agents := m.ListAgents()
	if agents[0].Status != StatusStoppedOnRestart {
		t.Errorf("expected stopped_on_restart, got %s", agents[0].Status)
	}
}

func TestBootReparentsOrphanedWorker(t *testing.T) {
	cfg := Config{}
	cfg.DataDir = t.TempDir()
	cfg.PrimaryCwd = cfg.DataDir

	now := time.Now()
	orphan := AgentDescriptor{
		AgentID: "worker-1", Role: RoleWorker, ManagerID: "ghost-manager",
		Status: StatusIdle, CreatedAt: now, UpdatedAt: now,
		Cwd: cfg.DataDir, SessionFile: filepath.Join(cfg.DataDir, "sessions", "worker-1.jsonl"),
	}
	if err := saveDescriptors(cfg.DataDir, descriptorFile{
		PrimaryManagerID: "primary",
		Agents:           []AgentDescriptor{orphan},
	}); err != nil {
		t.Fatalf("saveDescriptors: %v", err)
	}

	cfg.newRuntime = func(ctx context.Context, rc runtime.Config, cb runtime.Callbacks) (*runtime.Runtime, error) {
		return nil, nil
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}

	agents := m.ListAgents()
	var worker AgentDescriptor
	found := false
	for _, a := range agents {
		if a.AgentID == "worker-1" {
			worker = a
			found = true
		}
	}
	if !found {
		t.Fatal("expected worker-1 to survive boot")
	}
	if worker.ManagerID != "primary" {
		t.Errorf("expected worker-1 reparented to primary, got managerId=%q", worker.ManagerID)
	}
}
