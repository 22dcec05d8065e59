// ABOUTME: Inbound translation table: child notifications/requests to normalized SessionEvents.
// ABOUTME: Grounded on spec.md §4.2's handleNotification table and server-request auto-decisions.
package runtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/draphael89/swarmd/internal/childproto"
	"github.com/draphael89/swarmd/internal/rpc"
	"go.uber.org/zap"
)

func (r *Runtime) handleNotification(method string, params json.RawMessage) {
	switch {
	case method == childproto.NotifyTurnStarted:
		r.onTurnStarted(params)
	case method == childproto.NotifyTurnCompleted:
		r.onTurnCompleted()
	case method == childproto.NotifyItemStarted:
		r.onItemStarted(params)
	case method == childproto.NotifyItemCompleted:
		r.onItemCompleted(params)
	case method == childproto.NotifyAgentMessageDelta:
		r.onAgentMessageDelta(params)
	case strings.HasSuffix(method, childproto.NotifyOutputDeltaSuffix):
		r.onOutputDelta(params)
	default:
		logger.Warn("unknown notification method", zap.String("agent_id", r.agentID), zap.String("method", method))
	}
}

func (r *Runtime) onTurnStarted(params json.RawMessage) {
	var n childproto.TurnStartedNotification
	if err := json.Unmarshal(params, &n); err != nil {
		logger.Warn("decode turn_started failed", zap.String("agent_id", r.agentID), zap.Error(err))
		return
	}

	r.mu.Lock()
	r.activeTurnID = n.Turn.ID
	r.startRequestPending = false
	r.status = StatusStreaming
	threadID := r.threadID
	r.mu.Unlock()

	r.emit(SessionEvent{Kind: EventAgentStart})
	r.emit(SessionEvent{Kind: EventTurnStart})

	r.flushSteers(context.Background(), threadID)
}

func (r *Runtime) onTurnCompleted() {
	r.mu.Lock()
	r.activeTurnID = ""
	if r.status != StatusTerminated {
		r.status = StatusIdle
	}
	r.mu.Unlock()

	r.emit(SessionEvent{Kind: EventTurnEnd})
	r.emit(SessionEvent{Kind: EventAgentEnd})
	if r.cb.OnAgentEnd != nil {
		r.cb.OnAgentEnd()
	}
}

func (r *Runtime) onItemStarted(params json.RawMessage) {
	var n childproto.ItemStartedNotification
	if err := json.Unmarshal(params, &n); err != nil {
		logger.Warn("decode item_started failed", zap.String("agent_id", r.agentID), zap.Error(err))
		return
	}
	item := n.Item

	if item.Kind == childproto.ItemUserMessage {
		images := make([]Attachment, 0, len(item.Images))
		for _, img := range item.Images {
			images = append(images, Attachment{Mime: img.Mime, Base64: img.Base64})
		}
		r.ackDelivery(messageKey(item.Text, images))
	}

	switch item.Kind {
	case childproto.ItemUserMessage, childproto.ItemAgentMessage:
		role := "user"
		if item.Kind == childproto.ItemAgentMessage {
			role = "assistant"
		}
		r.emit(SessionEvent{Kind: EventMessageStart, Role: role, ItemID: item.ID})
	default:
		toolName := childproto.NormalizedToolName(item)
		r.mu.Lock()
		r.toolNameByItemID[item.ID] = toolName
		r.mu.Unlock()
		r.emit(SessionEvent{Kind: EventToolExecutionStart, ToolName: toolName, ItemID: item.ID})
	}
}

func (r *Runtime) onItemCompleted(params json.RawMessage) {
	var n childproto.ItemCompletedNotification
	if err := json.Unmarshal(params, &n); err != nil {
		logger.Warn("decode item_completed failed", zap.String("agent_id", r.agentID), zap.Error(err))
		return
	}
	item := n.Item
	isError := item.Status == childproto.ItemStatusFailed || item.Status == childproto.ItemStatusDeclined

	switch item.Kind {
	case childproto.ItemUserMessage, childproto.ItemAgentMessage:
		role := "user"
		if item.Kind == childproto.ItemAgentMessage {
			role = "assistant"
		}
		r.emit(SessionEvent{Kind: EventMessageEnd, Role: role, Text: item.Text, ItemID: item.ID, IsError: isError})
	default:
		r.mu.Lock()
		toolName := r.toolNameByItemID[item.ID]
		delete(r.toolNameByItemID, item.ID)
		r.mu.Unlock()
		if toolName == "" {
			toolName = childproto.NormalizedToolName(item)
		}
		r.emit(SessionEvent{Kind: EventToolExecutionEnd, ToolName: toolName, ItemID: item.ID, IsError: isError})
	}
}

func (r *Runtime) onAgentMessageDelta(params json.RawMessage) {
	var n childproto.AgentMessageDeltaNotification
	if err := json.Unmarshal(params, &n); err != nil {
		logger.Warn("decode message delta failed", zap.String("agent_id", r.agentID), zap.Error(err))
		return
	}
	r.emit(SessionEvent{Kind: EventMessageUpdate, Role: "assistant", Text: n.Delta})
}

func (r *Runtime) onOutputDelta(params json.RawMessage) {
	var n childproto.OutputDeltaNotification
	if err := json.Unmarshal(params, &n); err != nil {
		logger.Warn("decode output delta failed", zap.String("agent_id", r.agentID), zap.Error(err))
		return
	}
	r.mu.Lock()
	toolName := r.toolNameByItemID[n.ItemID]
	r.mu.Unlock()
	r.emit(SessionEvent{Kind: EventToolExecutionUpdate, ToolName: toolName, ItemID: n.ItemID, Text: n.Delta})
}

// handleRequest answers child-initiated requests: automatic accept decisions
// for approval prompts, empty answers for user-input prompts, and tool-call
// dispatch to the configured tool bridge.
func (r *Runtime) handleRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case childproto.MethodCommandExecutionApproval, childproto.MethodFileChangeApproval:
		return childproto.ApprovalDecision{Decision: childproto.DecisionAccept}, nil
	case childproto.MethodToolRequestUserInput:
		return childproto.UserInputAnswer{Answer: ""}, nil
	case childproto.MethodToolCall:
		var p childproto.ToolCallParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if r.cb.ToolCall == nil {
			return nil, rpc.ErrMethodNotFound
		}
		return r.cb.ToolCall(ctx, p)
	default:
		return nil, rpc.ErrMethodNotFound
	}
}
