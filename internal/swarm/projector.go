// ABOUTME: Translates runtime.SessionEvent/error/tool-call callbacks into descriptor updates and conversation entries.
// ABOUTME: message_start/end and tool_execution_* become conversation_log (message_update is not logged); speak_to_user becomes conversation_message.
package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/draphael89/swarmd/internal/childproto"
	"github.com/draphael89/swarmd/internal/eventbus"
	"github.com/draphael89/swarmd/internal/runtime"
	"github.com/draphael89/swarmd/internal/session"
	"go.uber.org/zap"
)

// speakToUserTool is the manager-facing tool name that addresses the human directly.
const speakToUserTool = "speak_to_user"

func (m *Manager) callbacksFor(agentID string) runtime.Callbacks {
	return runtime.Callbacks{
		OnSessionEvent: m.onSessionEvent,
		OnRuntimeError: func(phase, message string) { m.onRuntimeError(agentID, phase, message) },
		OnAgentEnd:     func() { m.onAgentEnd(agentID) },
		ToolCall: func(ctx context.Context, params childproto.ToolCallParams) (any, error) {
			return m.onToolCall(ctx, agentID, params)
		},
	}
}

func (m *Manager) onSessionEvent(evt runtime.SessionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.agents[evt.AgentID]
	if !ok {
		return
	}
	now := m.now()

	switch evt.Kind {
	case runtime.EventAgentStart, runtime.EventTurnStart:
		h.descriptor.Status = StatusStreaming
		h.descriptor.UpdatedAt = now
		m.publishStatusLocked(h.descriptor)

	case runtime.EventTurnEnd:
		// status settles on agent_end, which always follows turn_end.

	case runtime.EventAgentEnd:
		if h.descriptor.Status != StatusTerminated {
			h.descriptor.Status = StatusIdle
		}
		h.descriptor.UpdatedAt = now
		m.publishStatusLocked(h.descriptor)
		if evt.IsError {
			m.appendMessageLocked(session.MessageEntry{
				Agent:         evt.AgentID,
				Text:          diagnoseRuntimeFailure(evt.Text),
				Source:        session.SourceSystem,
				TimestampUnix: now.Unix(),
			})
		}

	case runtime.EventMessageStart:
		m.appendLogLocked(session.LogEntry{Agent: evt.AgentID, Kind: session.LogMessageStart, TimestampUnix: now.Unix()})

	case runtime.EventMessageEnd:
		m.appendLogLocked(session.LogEntry{
			Agent: evt.AgentID, Kind: session.LogMessageEnd, Text: evt.Text,
			IsError: evt.IsError, TimestampUnix: now.Unix(),
		})

	case runtime.EventMessageUpdate:
		// Deltas are not individually logged; only the final message_end text persists.

	case runtime.EventToolExecutionStart:
		m.appendLogLocked(session.LogEntry{
			Agent: evt.AgentID, Kind: session.LogToolExecutionStart, ToolName: evt.ToolName, TimestampUnix: now.Unix(),
		})

	case runtime.EventToolExecutionUpdate:
		m.appendLogLocked(session.LogEntry{
			Agent: evt.AgentID, Kind: session.LogToolExecutionUpdate, ToolName: evt.ToolName, Text: evt.Text, TimestampUnix: now.Unix(),
		})

	case runtime.EventToolExecutionEnd:
		m.appendLogLocked(session.LogEntry{
			Agent: evt.AgentID, Kind: session.LogToolExecutionEnd, ToolName: evt.ToolName,
			IsError: evt.IsError, TimestampUnix: now.Unix(),
		})

	case runtime.EventAutoCompactionStart, runtime.EventAutoCompactionEnd,
		runtime.EventAutoRetryStart, runtime.EventAutoRetryEnd:
		// Not logged. CompactAgentContext narrates only the compactions it starts itself.
	}
}

// diagnoseRuntimeFailure gives the user-visible system message a more useful
// hint than the raw runtime_exit text when the failure looks like a context
// overflow, since that's the one failure mode a human can act on directly
// (by triggering a compaction or restart) versus a generic crash.
func diagnoseRuntimeFailure(detail string) string {
	if detail == "" {
		return "The agent stopped unexpectedly."
	}
	lower := strings.ToLower(detail)
	if strings.Contains(lower, "context") &&
		(strings.Contains(lower, "window") || strings.Contains(lower, "length") ||
			strings.Contains(lower, "overflow") || strings.Contains(lower, "too long")) {
		return fmt.Sprintf("The agent stopped unexpectedly: %s. The conversation likely exceeded the model's context window; try /compact or reset the session.", detail)
	}
	return fmt.Sprintf("The agent stopped unexpectedly: %s", detail)
}

func (m *Manager) onRuntimeError(agentID, phase, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendMessageLocked(session.MessageEntry{
		Agent:         agentID,
		Text:          fmt.Sprintf("%s: %s", phase, message),
		Source:        session.SourceSystem,
		TimestampUnix: m.now().Unix(),
	})
}

func (m *Manager) onAgentEnd(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agentID]; !ok {
		return
	}
	if err := m.persistLocked(); err != nil {
		logger.Warn("conversation entry persist failed", zap.String("agent_id", agentID), zap.Error(err))
	}
}

// onToolCall handles the one tool the swarm layer interprets itself
// (speak_to_user); every other tool name is delegated to the caller-supplied
// tool bridge, if one is configured.
func (m *Manager) onToolCall(ctx context.Context, agentID string, params childproto.ToolCallParams) (any, error) {
	if params.Tool == speakToUserTool {
		text, _ := stringArg(params.Arguments, "text")
		m.mu.Lock()
		m.appendMessageLocked(session.MessageEntry{
			Agent:         agentID,
			Text:          text,
			Source:        session.SourceSpeakToUser,
			TimestampUnix: m.now().Unix(),
		})
		m.mu.Unlock()
		return map[string]any{"delivered": true}, nil
	}
	if m.toolBridge == nil {
		return nil, fmt.Errorf("swarm: no tool bridge configured for tool %q", params.Tool)
	}
	return m.toolBridge(ctx, agentID, params)
}

func stringArg(args any, key string) (string, bool) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func (m *Manager) appendMessageLocked(e session.MessageEntry) {
	m.conversation.Append(e)
	m.bus.Publish(eventbus.Event{Topic: eventbus.TopicConversationMessage, Payload: e})
}

func (m *Manager) appendLogLocked(e session.LogEntry) {
	m.conversation.Append(e)
	m.bus.Publish(eventbus.Event{Topic: eventbus.TopicConversationLog, Payload: e})
}
