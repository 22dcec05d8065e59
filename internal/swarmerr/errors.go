// ABOUTME: Sentinel error taxonomy shared by the swarm orchestrator packages.
// ABOUTME: Callers use errors.Is against these to classify failures without string matching.
package swarmerr

import "errors"

var (
	// ErrValidation marks a synchronously-rejected malformed request (bad
	// agentId, unknown archetype, cwd outside the allowlist, ...).
	ErrValidation = errors.New("validation failed")

	// ErrPermission marks a caller that is not authorized for an operation
	// (non-manager calling a manager-only op, cross-manager addressing, ...).
	ErrPermission = errors.New("permission denied")

	// ErrNotFound marks a reference to an agent, schedule, or descriptor
	// that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotRunning marks a reference to an agent that exists but is not in
	// a runnable state (terminated, stopped_on_restart).
	ErrNotRunning = errors.New("not running")

	// ErrTerminated marks an operation attempted against a runtime that has
	// already transitioned to Terminated.
	ErrTerminated = errors.New("agent is terminated")

	// ErrStartup marks a failure during AgentRuntime.Create's boot sequence
	// (missing binary, authentication required, no thread id).
	ErrStartup = errors.New("agent startup failed")

	// ErrDisposed marks an operation attempted against a disposed JsonRpcClient.
	ErrDisposed = errors.New("client disposed")

	// ErrTimeout marks a JSON-RPC request that exceeded its timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrBinaryMissing marks a child process spawn failure due to a missing
	// or unresolvable binary path.
	ErrBinaryMissing = errors.New("child binary is not installed or not available on PATH")
)
