// ABOUTME: Tests for ConversationEntry tagged-union marshaling and the ring buffer's eviction policy.
package session

import "testing"

func TestConversationEntryRoundTrip(t *testing.T) {
	entry := MessageEntry{
		Agent:         "worker-1",
		Text:          "hello",
		Source:        SourceUserInput,
		TimestampUnix: 100,
	}

	data, err := MarshalConversationEntry(entry)
	if err != nil {
		t.Fatalf("MarshalConversationEntry: %v", err)
	}

	decoded, err := UnmarshalConversationEntry(data)
	if err != nil {
		t.Fatalf("UnmarshalConversationEntry: %v", err)
	}
	msg, ok := decoded.(MessageEntry)
	if !ok {
		t.Fatalf("expected MessageEntry, got %T", decoded)
	}
	if msg.Text != "hello" || msg.Source != SourceUserInput {
		t.Errorf("unexpected decoded entry: %+v", msg)
	}
}

func TestRingEvictsNonPreservedFirst(t *testing.T) {
	r := NewRing(2)
	r.Append(MessageEntry{Agent: "a", Text: "preserved-1", Source: SourceUserInput})
	r.Append(LogEntry{Agent: "a", Kind: LogMessageStart})
	// capacity reached; appending again should evict the non-preserved log entry, not the user message.
	r.Append(MessageEntry{Agent: "a", Text: "preserved-2", Source: SourceSpeakToUser})

	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first, ok := entries[0].(MessageEntry)
	if !ok || first.Text != "preserved-1" {
		t.Errorf("expected preserved-1 to survive, got %+v", entries[0])
	}
	second, ok := entries[1].(MessageEntry)
	if !ok || second.Text != "preserved-2" {
		t.Errorf("expected preserved-2 to be appended, got %+v", entries[1])
	}
}

func TestRingEvictsOldestWhenAllPreserved(t *testing.T) {
	r := NewRing(1)
	r.Append(MessageEntry{Agent: "a", Text: "first", Source: SourceUserInput})
	r.Append(MessageEntry{Agent: "a", Text: "second", Source: SourceUserInput})

	entries := r.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	msg := entries[0].(MessageEntry)
	if msg.Text != "second" {
		t.Errorf("expected oldest preserved entry evicted, got %+v", msg)
	}
}
