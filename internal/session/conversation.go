// ABOUTME: ConversationEntry tagged union (conversation_message | conversation_log) and its ring buffer.
// ABOUTME: Discriminated-union marshal mirrors the provider message-part Kind-tag pattern used elsewhere in the pack.
package session

import (
	"encoding/json"
	"fmt"
)

// EntrySource enumerates the originating actor/channel of a conversation_message.
type EntrySource string

const (
	SourceUserInput    EntrySource = "user_input"
	SourceSpeakToUser  EntrySource = "speak_to_user"
	SourceSystem       EntrySource = "system"
	SourceRuntimeLog   EntrySource = "runtime_log"
)

// RuntimeLogKind enumerates the conversation_log line kinds.
type RuntimeLogKind string

const (
	LogMessageStart       RuntimeLogKind = "message_start"
	LogMessageEnd         RuntimeLogKind = "message_end"
	LogToolExecutionStart RuntimeLogKind = "tool_execution_start"
	LogToolExecutionUpdate RuntimeLogKind = "tool_execution_update"
	LogToolExecutionEnd   RuntimeLogKind = "tool_execution_end"
)

// Channel enumerates the external channels a message may have originated from.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelSlack    Channel = "slack"
	ChannelTelegram Channel = "telegram"
	ChannelDiscord  Channel = "discord"
)

// SourceContext carries the originating channel and thread/user/message identifiers.
type SourceContext struct {
	Channel   Channel `json:"channel"`
	ChannelID string  `json:"channelId,omitempty"`
	UserID    string  `json:"userId,omitempty"`
	MessageID string  `json:"messageId,omitempty"`
	ThreadID  string  `json:"threadId,omitempty"`
}

// Attachment describes a file attached to a conversation_message.
type Attachment struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Path     string `json:"path,omitempty"`
	Inline   string `json:"inline,omitempty"`
}

// ConversationEntry is the sum type over conversation_message and conversation_log.
type ConversationEntry interface {
	ConversationEntryType() string
	conversationEntrySeal()
	AgentID() string
}

// MessageEntry is a user/assistant/system text entry, optionally with attachments.
type MessageEntry struct {
	Agent         string         `json:"agentId"`
	Text          string         `json:"text"`
	Source        EntrySource    `json:"source"`
	SourceContext *SourceContext `json:"sourceContext,omitempty"`
	Attachments   []Attachment   `json:"attachments,omitempty"`
	TimestampUnix int64          `json:"timestamp"`
}

func (m MessageEntry) ConversationEntryType() string { return "conversation_message" }
func (m MessageEntry) conversationEntrySeal()         {}
func (m MessageEntry) AgentID() string                { return m.Agent }

// LogEntry is a runtime-log line; always source=runtime_log.
type LogEntry struct {
	Agent         string         `json:"agentId"`
	Kind          RuntimeLogKind `json:"kind"`
	ToolName      string         `json:"toolName,omitempty"`
	Text          string         `json:"text,omitempty"`
	IsError       bool           `json:"isError,omitempty"`
	TimestampUnix int64          `json:"timestamp"`
}

func (l LogEntry) ConversationEntryType() string { return "conversation_log" }
func (l LogEntry) conversationEntrySeal()         {}
func (l LogEntry) AgentID() string                { return l.Agent }

// MarshalConversationEntry serializes a ConversationEntry with an injected "type" discriminator.
func MarshalConversationEntry(e ConversationEntry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot marshal nil conversation entry")
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation entry: %w", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	typeJSON, _ := json.Marshal(e.ConversationEntryType())
	m["type"] = typeJSON
	return json.Marshal(m)
}

// UnmarshalConversationEntry deserializes a ConversationEntry using its "type" discriminator.
func UnmarshalConversationEntry(data []byte) (ConversationEntry, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal conversation entry type: %w", err)
	}

	switch envelope.Type {
	case "conversation_message":
		var e MessageEntry
		return e, json.Unmarshal(data, &e)
	case "conversation_log":
		var e LogEntry
		return e, json.Unmarshal(data, &e)
	default:
		return nil, fmt.Errorf("unknown conversation entry type: %q", envelope.Type)
	}
}

// preserved reports whether an entry must survive ring-buffer trimming: the
// web user-visible transcript (user_input and speak_to_user sourced entries).
func preserved(e ConversationEntry) bool {
	m, ok := e.(MessageEntry)
	if !ok {
		return false
	}
	return m.Source == SourceUserInput || m.Source == SourceSpeakToUser
}

// Ring is a capped in-memory projection of an agent's conversation, trimming
// the oldest non-preserved entry first so the user-visible transcript survives.
type Ring struct {
	cap     int
	entries []ConversationEntry
}

// NewRing creates a Ring capped at capacity entries (spec.md default: 2000).
func NewRing(capacity int) *Ring {
	return &Ring{cap: capacity}
}

// Append adds e to the ring, evicting the oldest non-preserved entry first if
// the ring is at capacity. If every entry is preserved, the oldest entry is
// evicted regardless, so the ring never exceeds its capacity.
func (r *Ring) Append(e ConversationEntry) {
	if len(r.entries) >= r.cap {
		r.evictOne()
	}
	r.entries = append(r.entries, e)
}

func (r *Ring) evictOne() {
	for i, e := range r.entries {
		if !preserved(e) {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
	if len(r.entries) > 0 {
		r.entries = r.entries[1:]
	}
}

// Entries returns a copy of the current entries, oldest first.
func (r *Ring) Entries() []ConversationEntry {
	out := make([]ConversationEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries currently held.
func (r *Ring) Len() int { return len(r.entries) }
