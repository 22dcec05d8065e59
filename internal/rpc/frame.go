// ABOUTME: Wire frames for the child-process JSON-RPC protocol: Response, Error, Request, Notification.
// ABOUTME: Frame kind is disambiguated by field presence ("id", "method", "result", "error") via typed struct decode.
package rpc

import (
	"encoding/json"
	"fmt"
)

// FrameKind identifies which of the four inbound frame shapes a decoded line is.
type FrameKind int

const (
	// FrameUnknown is returned when a line cannot be classified.
	FrameUnknown FrameKind = iota
	FrameResponse
	FrameError
	FrameRequest
	FrameNotification
)

// InboundFrame is the parsed shape of one line read from the child's stdout.
// Exactly one of the ID-bearing fields is meaningful depending on Kind.
type InboundFrame struct {
	Kind   FrameKind
	ID     json.RawMessage // present for Response, Error, Request
	Method string          // present for Request, Notification
	Params json.RawMessage // present for Request, Notification
	Result json.RawMessage // present for Response
	Err    *RPCError       // present for Error
}

// RPCError mirrors the {code, message, data} error object of the wire contract.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Well-known error codes per spec.md §4.1.
const (
	CodeInternal      = -32000
	CodeMethodNotFound = -32601
)

// wireFrame is the union of every field any of the four frame shapes can
// carry. Pointer/RawMessage fields left nil after decoding are absent from
// the source line, which is how ParseInboundFrame tells the shapes apart.
type wireFrame struct {
	ID     *json.RawMessage `json:"id,omitempty"`
	Method *string          `json:"method,omitempty"`
	Params json.RawMessage  `json:"params,omitempty"`
	Result *json.RawMessage `json:"result,omitempty"`
	Error  *RPCError        `json:"error,omitempty"`
}

// ParseInboundFrame classifies and decodes a single line of JSON read from a
// child process. Field presence, not a type tag, determines the frame kind:
// a "method" field without "id" is a Notification, "method" with "id" is a
// Request, "result" is a Response, "error" is an Error.
func ParseInboundFrame(line []byte) (InboundFrame, error) {
	var w wireFrame
	if err := json.Unmarshal(line, &w); err != nil {
		return InboundFrame{}, fmt.Errorf("invalid JSON line: %s: %w", truncate(line), err)
	}

	hasID := w.ID != nil
	hasMethod := w.Method != nil

	// A "result": null member decodes to a nil pointer; look it up by key so
	// it still counts as present.
	if w.Result == nil && w.Error == nil && !hasMethod {
		var fields map[string]json.RawMessage
		if json.Unmarshal(line, &fields) == nil {
			if raw, ok := fields["result"]; ok {
				w.Result = &raw
			}
		}
	}

	var frame InboundFrame
	switch {
	case hasMethod && hasID:
		frame.Kind = FrameRequest
	case hasMethod && !hasID:
		frame.Kind = FrameNotification
	case w.Error != nil:
		frame.Kind = FrameError
	case w.Result != nil:
		frame.Kind = FrameResponse
	default:
		return InboundFrame{}, fmt.Errorf("frame matches no known shape: %s", truncate(line))
	}

	if hasID {
		frame.ID = *w.ID
	}
	if hasMethod {
		frame.Method = *w.Method
	}
	frame.Params = w.Params
	if w.Result != nil {
		frame.Result = *w.Result
	}
	frame.Err = w.Error

	return frame, nil
}

func truncate(line []byte) string {
	const max = 200
	if len(line) > max {
		return string(line[:max]) + "..."
	}
	return string(line)
}

// outboundRequest is the wire encoding of an outbound request (has id).
type outboundRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params any             `json:"params,omitempty"`
}

// outboundNotification is the wire encoding of an outbound notification (no id).
type outboundNotification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// outboundResponse is the wire encoding of a response the parent sends back
// for a child-initiated request (onRequest callback result).
type outboundResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
}

// outboundErrorResponse is the wire encoding of an error response the parent
// sends back for a child-initiated request that failed.
type outboundErrorResponse struct {
	ID    json.RawMessage `json:"id"`
	Error *RPCError       `json:"error"`
}

func encodeRequest(id int64, method string, params any) ([]byte, error) {
	idRaw, _ := json.Marshal(id)
	return json.Marshal(outboundRequest{ID: idRaw, Method: method, Params: params})
}

func encodeNotification(method string, params any) ([]byte, error) {
	return json.Marshal(outboundNotification{Method: method, Params: params})
}

func encodeResponse(id json.RawMessage, result any) ([]byte, error) {
	return json.Marshal(outboundResponse{ID: id, Result: result})
}

func encodeErrorResponse(id json.RawMessage, code int, message string) ([]byte, error) {
	return json.Marshal(outboundErrorResponse{ID: id, Error: &RPCError{Code: code, Message: message}})
}
