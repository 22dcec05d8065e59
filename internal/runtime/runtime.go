// ABOUTME: AgentRuntime: the turn/steer state machine driving one child process over JsonRpcClient.
// ABOUTME: Boot sequence, status transitions, and terminate/stopInFlight, per spec.md §4.2.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/draphael89/swarmd/internal/childproto"
	"github.com/draphael89/swarmd/internal/rpc"
	"github.com/draphael89/swarmd/internal/session"
	"github.com/draphael89/swarmd/internal/swarmerr"
	"go.uber.org/zap"
)

// defaultTimeout is the JSON-RPC request timeout inherited by turn/start and turn/steer.
const defaultTimeout = rpc.DefaultRequestTimeout

// Runtime is the state machine for a single agent's child process.
type Runtime struct {
	agentID string
	cwd     string
	cb      Callbacks
	store   *session.Store
	client  *rpc.Client

	mu                  sync.Mutex
	status              Status
	threadID            string
	activeTurnID        string
	startRequestPending bool
	pendingDeliveries   []pendingDelivery
	queuedSteers        []queuedSteer
	toolNameByItemID    map[string]string
	nextDeliverySeq     int64
}

// Create runs the deterministic boot sequence (initialize, auth, thread
// bootstrap) and returns a Runtime in state Idle. On any startup failure the
// underlying client is disposed and no Runtime is returned.
func Create(ctx context.Context, cfg Config, cb Callbacks) (*Runtime, error) {
	store, err := session.Open(cfg.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open session store: %v", swarmerr.ErrStartup, err)
	}

	r := &Runtime{
		agentID:          cfg.AgentID,
		cwd:              cfg.Cwd,
		cb:               cb,
		store:            store,
		status:           StatusStarting,
		toolNameByItemID: make(map[string]string),
	}

	client, err := rpc.Start(rpc.Config{
		Command: cfg.Command,
		Args:    cfg.Args,
		Dir:     cfg.Cwd,
		Env:     cfg.Env,
	}, rpc.Callbacks{
		OnNotification: r.handleNotification,
		OnRequest:      r.handleRequest,
		OnExit:         r.handleExit,
		OnStderr:       r.handleStderr,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %v", swarmerr.ErrStartup, err)
	}
	r.client = client

	if err := r.boot(ctx, cfg); err != nil {
		client.Dispose()
		_ = store.Close()
		return nil, err
	}

	r.mu.Lock()
	r.status = StatusIdle
	r.mu.Unlock()

	return r, nil
}

func (r *Runtime) boot(ctx context.Context, cfg Config) error {
	if err := r.client.Request(ctx, childproto.MethodInitialize, childproto.InitializeParams{
		ClientInfo:   childproto.ClientInfo{Name: "swarmd", Version: "1"},
		Capabilities: childproto.Capabilities{Streaming: true},
	}, defaultTimeout, nil); err != nil {
		return fmt.Errorf("%w: initialize: %v", swarmerr.ErrStartup, err)
	}
	if err := r.client.Notify("initialized", struct{}{}); err != nil {
		return fmt.Errorf("%w: initialized notify: %v", swarmerr.ErrStartup, err)
	}

	if err := r.ensureAuthenticated(ctx, cfg); err != nil {
		return err
	}

	if err := r.bootstrapThread(ctx, cfg); err != nil {
		return err
	}

	return nil
}

func (r *Runtime) ensureAuthenticated(ctx context.Context, cfg Config) error {
	var readResult childproto.AccountReadResult
	if err := r.client.Request(ctx, childproto.MethodAccountRead, childproto.AccountReadParams{
		RefreshToken: cfg.RefreshToken,
	}, defaultTimeout, &readResult); err != nil {
		return fmt.Errorf("%w: account/read: %v", swarmerr.ErrStartup, err)
	}
	if !readResult.RequiresOpenAIAuth || readResult.Account != nil {
		return nil
	}

	if err := r.client.Request(ctx, childproto.MethodAccountLoginStart, childproto.AccountLoginStartParams{
		Type:   cfg.LoginType,
		APIKey: cfg.LoginAPIKey,
	}, defaultTimeout, nil); err != nil {
		return fmt.Errorf("%w: account/login/start: %v", swarmerr.ErrStartup, err)
	}

	if err := r.client.Request(ctx, childproto.MethodAccountRead, childproto.AccountReadParams{
		RefreshToken: cfg.RefreshToken,
	}, defaultTimeout, &readResult); err != nil {
		return fmt.Errorf("%w: account/read retry: %v", swarmerr.ErrStartup, err)
	}
	if readResult.RequiresOpenAIAuth && readResult.Account == nil {
		return fmt.Errorf("%w: authentication required and no credentials available", swarmerr.ErrStartup)
	}
	return nil
}

func (r *Runtime) bootstrapThread(ctx context.Context, cfg Config) error {
	var persisted struct {
		ThreadID string `json:"threadId"`
	}
	found, err := session.LastCustomEntry(cfg.SessionPath, session.CustomTypeRuntimeState, &persisted)
	if err != nil {
		logger.Warn("load thread state failed", zap.String("agent_id", cfg.AgentID), zap.Error(err))
	}

	if found && persisted.ThreadID != "" {
		var resumeResult childproto.ThreadResult
		err := r.client.Request(ctx, childproto.MethodThreadResume, childproto.ThreadResumeParams{
			ThreadID:              persisted.ThreadID,
			Cwd:                   cfg.Cwd,
			ApprovalPolicy:        cfg.Thread.ApprovalPolicy,
			Sandbox:               cfg.Thread.Sandbox,
			Config:                cfg.Thread.Config,
			DeveloperInstructions: cfg.Thread.DeveloperInstructions,
		}, defaultTimeout, &resumeResult)
		if err == nil && resumeResult.Thread.ID != "" {
			r.threadID = resumeResult.Thread.ID
			return r.persistThreadID(resumeResult.Thread.ID)
		}
		logger.Warn("thread resume failed", zap.String("agent_id", cfg.AgentID), zap.Error(err))
	}

	var startResult childproto.ThreadResult
	if err := r.client.Request(ctx, childproto.MethodThreadStart, childproto.ThreadStartParams{
		Cwd:                   cfg.Cwd,
		ApprovalPolicy:        cfg.Thread.ApprovalPolicy,
		Sandbox:               cfg.Thread.Sandbox,
		Config:                cfg.Thread.Config,
		DeveloperInstructions: cfg.Thread.DeveloperInstructions,
		DynamicTools:          cfg.Thread.DynamicTools,
	}, defaultTimeout, &startResult); err != nil {
		return fmt.Errorf("%w: thread/start: %v", swarmerr.ErrStartup, err)
	}
	if startResult.Thread.ID == "" {
		return fmt.Errorf("%w: thread/start returned no thread id", swarmerr.ErrStartup)
	}
	r.threadID = startResult.Thread.ID
	return r.persistThreadID(startResult.Thread.ID)
}

func (r *Runtime) persistThreadID(threadID string) error {
	return r.store.AppendCustom(session.CustomTypeRuntimeState, map[string]string{"threadId": threadID})
}

// Status returns the runtime's current public status.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// PendingCount returns len(pendingDeliveries), used by tests and callers
// asserting the post-terminate invariant.
func (r *Runtime) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pendingDeliveries)
}

// Terminate aborts (if abort and a turn is active, best-effort turn/interrupt),
// disposes the client, clears all queues, and sets status to Terminated.
func (r *Runtime) Terminate(ctx context.Context, abort bool) {
	r.mu.Lock()
	turnID := r.activeTurnID
	threadID := r.threadID
	r.mu.Unlock()

	if abort && turnID != "" {
		_ = r.client.Request(ctx, childproto.MethodTurnInterrupt, childproto.TurnInterruptParams{
			ThreadID: threadID,
			TurnID:   turnID,
		}, defaultTimeout, nil)
	}

	r.client.Dispose()

	r.mu.Lock()
	r.status = StatusTerminated
	r.activeTurnID = ""
	r.startRequestPending = false
	r.pendingDeliveries = nil
	r.queuedSteers = nil
	r.mu.Unlock()

	_ = r.store.Close()
}

// StopInFlight interrupts (best-effort, if abort) without disposing the
// child, clears queues, and returns the runtime to Idle.
func (r *Runtime) StopInFlight(ctx context.Context, abort bool) {
	r.mu.Lock()
	turnID := r.activeTurnID
	threadID := r.threadID
	r.mu.Unlock()

	if abort && turnID != "" {
		_ = r.client.Request(ctx, childproto.MethodTurnInterrupt, childproto.TurnInterruptParams{
			ThreadID: threadID,
			TurnID:   turnID,
		}, defaultTimeout, nil)
	}

	r.mu.Lock()
	r.activeTurnID = ""
	r.startRequestPending = false
	r.pendingDeliveries = nil
	r.queuedSteers = nil
	r.status = StatusIdle
	r.mu.Unlock()
}

func (r *Runtime) handleStderr(line string) {
	logger.Debug("child stderr", zap.String("agent_id", r.agentID), zap.String("line", line))
}

func (r *Runtime) handleExit(err error) {
	r.mu.Lock()
	if r.status == StatusTerminated {
		r.mu.Unlock()
		return
	}
	r.status = StatusTerminated
	r.activeTurnID = ""
	r.startRequestPending = false
	r.pendingDeliveries = nil
	r.queuedSteers = nil
	r.mu.Unlock()

	message := "child process exited"
	if err != nil {
		message = err.Error()
	}
	if r.cb.OnRuntimeError != nil {
		r.cb.OnRuntimeError("runtime_exit", message)
	}
	r.emit(SessionEvent{Kind: EventToolExecutionEnd, AgentID: r.agentID, ToolName: "runtime", IsError: true})
}

func (r *Runtime) emit(evt SessionEvent) {
	if r.cb.OnSessionEvent != nil {
		evt.AgentID = r.agentID
		r.cb.OnSessionEvent(evt)
	}
}

// Compact requests the child summarize/shrink its working context. The
// concrete child wire method is not pinned by the external wire contract in
// spec.md §6 (compaction is described only as "a runtime-provided
// operation"); this sends a best-effort thread/compact request and emits the
// auto_compaction_start/end pair regardless of outcome.
func (r *Runtime) Compact(ctx context.Context, customInstructions string) error {
	r.mu.Lock()
	threadID := r.threadID
	r.mu.Unlock()

	r.emit(SessionEvent{Kind: EventAutoCompactionStart})
	err := r.client.Request(ctx, "thread/compact", struct {
		ThreadID           string `json:"threadId"`
		CustomInstructions string `json:"customInstructions,omitempty"`
	}{ThreadID: threadID, CustomInstructions: customInstructions}, defaultTimeout, nil)
	r.emit(SessionEvent{Kind: EventAutoCompactionEnd, IsError: err != nil})
	return err
}
