// ABOUTME: Typed method names, params, and results for the child-process JSON-RPC contract.
// ABOUTME: Grounded on spec.md §6's wire surface; payload shapes use plain structs per loom's jsonrpc.go.
package childproto

// Parent-initiated method names.
const (
	MethodInitialize       = "initialize"
	MethodAccountRead       = "account/read"
	MethodAccountLoginStart = "account/login/start"
	MethodThreadStart       = "thread/start"
	MethodThreadResume      = "thread/resume"
	MethodTurnStart         = "turn/start"
	MethodTurnSteer         = "turn/steer"
	MethodTurnInterrupt     = "turn/interrupt"
)

// Child-initiated request method names.
const (
	MethodToolCall                   = "item/tool/call"
	MethodCommandExecutionApproval    = "item/commandExecution/requestApproval"
	MethodFileChangeApproval          = "item/fileChange/requestApproval"
	MethodToolRequestUserInput        = "item/tool/requestUserInput"
)

// Child-initiated notification method names.
const (
	NotifyTurnStarted        = "turn/started"
	NotifyTurnCompleted      = "turn/completed"
	NotifyItemStarted        = "item/started"
	NotifyItemCompleted      = "item/completed"
	NotifyAgentMessageDelta  = "item/agentMessage/delta"
	NotifyOutputDeltaSuffix  = "/outputDelta" // method is "item/{kind}/outputDelta"
)

// ClientInfo identifies the parent to the child during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises parent-side feature support during initialize.
type Capabilities struct {
	Streaming bool `json:"streaming"`
}

// InitializeParams is the payload for the initialize request.
type InitializeParams struct {
	ClientInfo   ClientInfo   `json:"clientInfo"`
	Capabilities Capabilities `json:"capabilities"`
}

// AccountReadParams is the payload for account/read.
type AccountReadParams struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AccountReadResult is the response to account/read.
type AccountReadResult struct {
	RequiresOpenAIAuth bool `json:"requiresOpenaiAuth"`
	Account            any  `json:"account"`
}

// AccountLoginStartParams is the payload for account/login/start.
type AccountLoginStartParams struct {
	Type   string `json:"type"`
	APIKey string `json:"apiKey,omitempty"`
}

// ThreadStartParams is the payload for thread/start.
type ThreadStartParams struct {
	Cwd                  string `json:"cwd"`
	ApprovalPolicy       string `json:"approvalPolicy"`
	Sandbox              any    `json:"sandbox,omitempty"`
	Config               any    `json:"config,omitempty"`
	DeveloperInstructions string `json:"developerInstructions"`
	DynamicTools         any    `json:"dynamicTools,omitempty"`
}

// ThreadResumeParams is the payload for thread/resume.
type ThreadResumeParams struct {
	ThreadID              string `json:"threadId"`
	Cwd                   string `json:"cwd"`
	ApprovalPolicy        string `json:"approvalPolicy"`
	Sandbox               any    `json:"sandbox,omitempty"`
	Config                any    `json:"config,omitempty"`
	DeveloperInstructions string `json:"developerInstructions"`
}

// ThreadInfo is the nested shape shared by thread/start and thread/resume results.
type ThreadInfo struct {
	ID string `json:"id"`
}

// ThreadResult is the response shared by thread/start and thread/resume.
type ThreadResult struct {
	Thread ThreadInfo `json:"thread"`
}

// InputPart is one element of a turn/start or turn/steer input array.
// Type is either "text" or "image"; fields not applicable to a given Type are omitted.
type InputPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// TextInput builds a text InputPart.
func TextInput(text string) InputPart { return InputPart{Type: "text", Text: text} }

// ImageInput builds an image InputPart from a data URL or remote URL.
func ImageInput(url string) InputPart { return InputPart{Type: "image", URL: url} }

// TurnStartParams is the payload for turn/start.
type TurnStartParams struct {
	ThreadID      string      `json:"threadId"`
	Cwd           string      `json:"cwd,omitempty"`
	SandboxPolicy any         `json:"sandboxPolicy,omitempty"`
	Input         []InputPart `json:"input"`
}

// TurnInfo is the nested shape of a turn/start result and turn/started notification.
type TurnInfo struct {
	ID string `json:"id"`
}

// TurnStartResult is the response to turn/start.
type TurnStartResult struct {
	Turn TurnInfo `json:"turn"`
}

// TurnSteerParams is the payload for turn/steer.
type TurnSteerParams struct {
	ThreadID       string      `json:"threadId"`
	ExpectedTurnID string      `json:"expectedTurnId"`
	Input          []InputPart `json:"input"`
}

// TurnInterruptParams is the payload for turn/interrupt.
type TurnInterruptParams struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId"`
}

// ToolCallParams is the payload of a child-initiated item/tool/call request.
type ToolCallParams struct {
	Tool      string `json:"tool"`
	CallID    string `json:"callId"`
	Arguments any    `json:"arguments"`
}

// ApprovalDecision is the parent's response to a command/file approval request.
type ApprovalDecision struct {
	Decision string `json:"decision"`
}

// Decision values accepted by the approval handlers.
const (
	DecisionAccept  = "accept"
	DecisionDecline = "decline"
)

// UserInputAnswer is the parent's response to item/tool/requestUserInput.
type UserInputAnswer struct {
	Answer string `json:"answer"`
}

// TurnStartedNotification is the payload of the turn/started notification.
type TurnStartedNotification struct {
	Turn TurnInfo `json:"turn"`
}

// ItemKind enumerates the thread-item variants referenced by item/started and item/completed.
type ItemKind string

const (
	ItemUserMessage       ItemKind = "userMessage"
	ItemAgentMessage      ItemKind = "agentMessage"
	ItemCommandExecution  ItemKind = "commandExecution"
	ItemFileChange        ItemKind = "fileChange"
	ItemMcpToolCall       ItemKind = "mcpToolCall"
	ItemCollabAgentTool   ItemKind = "collabAgentToolCall"
	ItemWebSearch         ItemKind = "webSearch"
	ItemImageView         ItemKind = "imageView"
	ItemOther             ItemKind = "other"
)

// ItemStatus enumerates the terminal statuses a thread item can complete with.
type ItemStatus string

const (
	ItemStatusCompleted ItemStatus = "completed"
	ItemStatusFailed    ItemStatus = "failed"
	ItemStatusDeclined  ItemStatus = "declined"
)

// ThreadItem is the closed-with-escape-hatch shape of item/started and item/completed payloads.
// Text and Images are populated only for ItemUserMessage/ItemAgentMessage kinds; they let the
// runtime recompute a messageKey to acknowledge the matching pending delivery.
type ThreadItem struct {
	ID        string          `json:"id"`
	Kind      ItemKind        `json:"kind"`
	ToolName  string          `json:"toolName,omitempty"`
	McpServer string          `json:"mcpServer,omitempty"`
	Status    ItemStatus      `json:"status,omitempty"`
	Text      string          `json:"text,omitempty"`
	Images    []ImageAttachment `json:"images,omitempty"`
}

// ImageAttachment is the minimal shape needed to recompute a messageKey fingerprint.
type ImageAttachment struct {
	Mime   string `json:"mime"`
	Base64 string `json:"base64"`
}

// ItemStartedNotification is the payload of item/started.
type ItemStartedNotification struct {
	Item ThreadItem `json:"item"`
}

// ItemCompletedNotification is the payload of item/completed.
type ItemCompletedNotification struct {
	Item ThreadItem `json:"item"`
}

// AgentMessageDeltaNotification is the payload of item/agentMessage/delta.
type AgentMessageDeltaNotification struct {
	Delta string `json:"delta"`
}

// OutputDeltaNotification is the payload of an item/{kind}/outputDelta notification.
type OutputDeltaNotification struct {
	ItemID string `json:"itemId"`
	Delta  string `json:"delta"`
}

// NormalizedToolName maps a raw ThreadItem kind (and, for mcp/collab calls, its
// tool/server names) to the normalized tool-name vocabulary of spec.md §4.2.
func NormalizedToolName(item ThreadItem) string {
	switch item.Kind {
	case ItemCommandExecution:
		return "command_execution"
	case ItemFileChange:
		return "file_change"
	case ItemMcpToolCall:
		return "mcp:" + item.McpServer + "/" + item.ToolName
	case ItemCollabAgentTool:
		return "collab:" + item.ToolName
	case ItemWebSearch:
		return "web_search"
	case ItemImageView:
		return "image_view"
	default:
		return string(item.Kind)
	}
}
