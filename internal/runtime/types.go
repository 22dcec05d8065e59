// ABOUTME: Public types for AgentRuntime: status, delivery modes, session events, and callbacks.
// ABOUTME: Design Note §9's "tuple-of-callbacks" guidance: one Callbacks struct with optional fields.
package runtime

import (
	"context"

	"github.com/draphael89/swarmd/internal/childproto"
)

// Status is the agent's public lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusStarting   Status = "starting"
	StatusStreaming  Status = "streaming"
	StatusTerminated Status = "terminated"
)

// DeliveryMode describes how a caller wants a message handled given the
// runtime's current state.
type DeliveryMode string

const (
	ModePrompt   DeliveryMode = "prompt"
	ModeSteer    DeliveryMode = "steer"
	ModeFollowUp DeliveryMode = "followUp"
	ModeAuto     DeliveryMode = "auto"
)

// SendReceipt is returned from SendMessage, echoing the mode actually accepted.
type SendReceipt struct {
	DeliveryID   string
	AcceptedMode DeliveryMode // always ModePrompt or ModeSteer
}

// Attachment is an image part of a sendMessage call, carried through to the
// child as an image InputPart and folded into the messageKey fingerprint.
type Attachment struct {
	Mime   string
	Base64 string
}

// pendingDelivery tracks a message awaiting child-side acknowledgement via
// item/started(userMessage).
type pendingDelivery struct {
	DeliveryID string
	MessageKey string
}

// queuedSteer is a message waiting to be injected into the active turn via turn/steer.
type queuedSteer struct {
	DeliveryID string
	Input      []childproto.InputPart
}

// SessionEventKind enumerates the normalized event vocabulary of spec.md §3.
type SessionEventKind string

const (
	EventAgentStart          SessionEventKind = "agent_start"
	EventAgentEnd            SessionEventKind = "agent_end"
	EventTurnStart           SessionEventKind = "turn_start"
	EventTurnEnd             SessionEventKind = "turn_end"
	EventMessageStart        SessionEventKind = "message_start"
	EventMessageUpdate       SessionEventKind = "message_update"
	EventMessageEnd          SessionEventKind = "message_end"
	EventToolExecutionStart  SessionEventKind = "tool_execution_start"
	EventToolExecutionUpdate SessionEventKind = "tool_execution_update"
	EventToolExecutionEnd    SessionEventKind = "tool_execution_end"
	EventAutoCompactionStart SessionEventKind = "auto_compaction_start"
	EventAutoCompactionEnd   SessionEventKind = "auto_compaction_end"
	EventAutoRetryStart      SessionEventKind = "auto_retry_start"
	EventAutoRetryEnd        SessionEventKind = "auto_retry_end"
)

// SessionEvent is what AgentRuntime emits to its OnSessionEvent callback.
type SessionEvent struct {
	Kind     SessionEventKind
	AgentID  string
	Role     string // "assistant" for message_update/message_end on agent messages
	Text     string // full text for message_end, delta text for message_update
	ToolName string
	ItemID   string
	IsError  bool
}

// Callbacks bundles every hook an AgentRuntime invokes. All fields are
// optional; a nil field is a no-op except ToolCall, whose absence causes
// child tool-call requests to fail with a method-not-found error.
type Callbacks struct {
	// OnSessionEvent receives every normalized session event in emission order.
	OnSessionEvent func(SessionEvent)

	// OnRuntimeError receives recoverable failures: {phase, message}.
	OnRuntimeError func(phase, message string)

	// OnAgentEnd fires once per completed turn, after the corresponding
	// agent_end SessionEvent.
	OnAgentEnd func()

	// ToolCall dispatches a child-initiated item/tool/call request to a tool
	// bridge and returns its result.
	ToolCall func(ctx context.Context, params childproto.ToolCallParams) (any, error)
}

// ThreadConfig carries the runtime-specific options passed on both
// thread/start and thread/resume (sandbox policy, developer instructions,
// dynamic tool descriptors).
type ThreadConfig struct {
	ApprovalPolicy        string
	Sandbox               any
	Config                any
	DeveloperInstructions string
	DynamicTools          any
}

// Config configures one AgentRuntime instance.
type Config struct {
	AgentID     string
	Cwd         string
	Command     string
	Args        []string
	Env         []string
	SessionPath string
	Thread      ThreadConfig

	// RefreshToken, LoginType and LoginAPIKey feed account/read and
	// account/login/start during the boot sequence.
	RefreshToken   string
	LoginType      string
	LoginAPIKey    string
}
