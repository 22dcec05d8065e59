// ABOUTME: sendMessage delivery-mode mapping, messageKey fingerprinting, and the steer flush loop.
// ABOUTME: Grounded on spec.md §4.2's state table and ordering guarantees in §5.
package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/draphael89/swarmd/internal/childproto"
	"github.com/draphael89/swarmd/internal/swarmerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// messageKey computes a deterministic fingerprint of normalized text plus
// image attachments (mime, length, first 24 chars of base64), so inbound
// item/started(userMessage) events can acknowledge the correct pending
// delivery regardless of the order the child echoes them back.
func messageKey(text string, images []Attachment) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(text)))
	for _, img := range images {
		h.Write([]byte(img.Mime))
		fmt.Fprintf(h, "|%d|", len(img.Base64))
		prefix := img.Base64
		if len(prefix) > 24 {
			prefix = prefix[:24]
		}
		h.Write([]byte(prefix))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func toInputParts(text string, images []Attachment) []childproto.InputPart {
	parts := make([]childproto.InputPart, 0, 1+len(images))
	if text != "" {
		parts = append(parts, childproto.TextInput(text))
	}
	for _, img := range images {
		parts = append(parts, childproto.ImageInput("data:"+img.Mime+";base64,"+img.Base64))
	}
	return parts
}

// SendMessage delivers text (with optional image attachments) according to
// requestedMode, returning a receipt that echoes the mode actually accepted.
func (r *Runtime) SendMessage(ctx context.Context, text string, images []Attachment, requestedMode DeliveryMode) (SendReceipt, error) {
	r.mu.Lock()
	if r.status == StatusTerminated {
		r.mu.Unlock()
		return SendReceipt{}, swarmerr.ErrTerminated
	}

	effective := requestedMode
	if effective == ModeFollowUp {
		effective = ModeAuto
	}
	if effective == ModeAuto {
		if r.status == StatusIdle {
			effective = ModePrompt
		} else {
			effective = ModeSteer
		}
	}
	if effective == ModePrompt && r.status != StatusIdle {
		r.mu.Unlock()
		return SendReceipt{}, fmt.Errorf("%w: prompt requires Idle, runtime is %s", swarmerr.ErrValidation, r.status)
	}

	deliveryID := uuid.New().String()
	key := messageKey(text, images)
	input := toInputParts(text, images)

	if effective == ModePrompt {
		r.status = StatusStarting
		r.startRequestPending = true
		threadID := r.threadID
		cwd := r.cwd
		r.pendingDeliveries = append(r.pendingDeliveries, pendingDelivery{DeliveryID: deliveryID, MessageKey: key})
		r.mu.Unlock()

		var result childproto.TurnStartResult
		err := r.client.Request(ctx, childproto.MethodTurnStart, childproto.TurnStartParams{
			ThreadID: threadID,
			Cwd:      cwd,
			Input:    input,
		}, defaultTimeout, &result)

		r.mu.Lock()
		if err != nil {
			r.mu.Unlock()
			r.recoverFromTurnFailure(ctx, "prompt_start", err)
			return SendReceipt{}, err
		}
		r.startRequestPending = false
		if result.Turn.ID != "" {
			r.activeTurnID = result.Turn.ID
			r.status = StatusStreaming
		}
		r.mu.Unlock()

		return SendReceipt{DeliveryID: deliveryID, AcceptedMode: ModePrompt}, nil
	}

	// Steer: enqueue into both pendingDeliveries and queuedSteers.
	r.pendingDeliveries = append(r.pendingDeliveries, pendingDelivery{DeliveryID: deliveryID, MessageKey: key})
	r.queuedSteers = append(r.queuedSteers, queuedSteer{DeliveryID: deliveryID, Input: input})
	activeTurnID := r.activeTurnID
	threadID := r.threadID
	r.mu.Unlock()

	if activeTurnID != "" {
		r.flushSteers(ctx, threadID)
	}

	return SendReceipt{DeliveryID: deliveryID, AcceptedMode: ModeSteer}, nil
}

// flushSteers drains queuedSteers into turn/steer calls while a turn is
// active. On failure it stops flushing and runs turn-failure recovery
// without propagating the error to any caller (the steer was asynchronous).
func (r *Runtime) flushSteers(ctx context.Context, threadID string) {
	for {
		r.mu.Lock()
		if r.activeTurnID == "" || len(r.queuedSteers) == 0 {
			r.mu.Unlock()
			return
		}
		head := r.queuedSteers[0]
		expectedTurnID := r.activeTurnID
		r.mu.Unlock()

		err := r.client.Request(ctx, childproto.MethodTurnSteer, childproto.TurnSteerParams{
			ThreadID:       threadID,
			ExpectedTurnID: expectedTurnID,
			Input:          head.Input,
		}, defaultTimeout, nil)

		if err != nil {
			logger.Warn("turn steer failed", zap.String("agent_id", r.agentID), zap.Error(err))
			r.recoverFromTurnFailure(ctx, "turn_steer", err)
			return
		}

		r.mu.Lock()
		if len(r.queuedSteers) > 0 && r.queuedSteers[0].DeliveryID == head.DeliveryID {
			r.queuedSteers = r.queuedSteers[1:]
		}
		r.mu.Unlock()
	}
}

// recoverFromTurnFailure emits a synthetic turn_end/agent_end, returns the
// runtime to Idle, and reports via OnRuntimeError.
func (r *Runtime) recoverFromTurnFailure(ctx context.Context, phase string, cause error) {
	r.mu.Lock()
	r.activeTurnID = ""
	r.startRequestPending = false
	if r.status != StatusTerminated {
		r.status = StatusIdle
	}
	r.mu.Unlock()

	r.emit(SessionEvent{Kind: EventTurnEnd, IsError: true})
	r.emit(SessionEvent{Kind: EventAgentEnd, IsError: true})
	if r.cb.OnRuntimeError != nil {
		r.cb.OnRuntimeError(phase, cause.Error())
	}
	if r.cb.OnAgentEnd != nil {
		r.cb.OnAgentEnd()
	}
}

// ackDelivery removes the pending delivery matching key, if any, per the
// FIFO invariant: the oldest matching entry is removed first.
func (r *Runtime) ackDelivery(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, pd := range r.pendingDeliveries {
		if pd.MessageKey == key {
			r.pendingDeliveries = append(r.pendingDeliveries[:i], r.pendingDeliveries[i+1:]...)
			return
		}
	}
}
