package wire

import (
	"encoding/json"
	"fmt"
)

// WireError is the structured error shape embedded in a failed Response.
// Only Kind and Message cross the wire; internal debugging context
// (component, operation, underlying cause) stays server-side.
type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is the reply to an Instruction: either a success payload or a
// structured error, never both.
type Response struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value,omitempty"`
	Error *WireError      `json:"error,omitempty"`
}

// OK builds a successful response, marshaling value as the payload. A nil
// value marshals to JSON null, matching spec.md's "void" success case.
func OK(value any) (Response, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return Response{}, fmt.Errorf("wire: encode response value: %w", err)
	}
	return Response{OK: true, Value: b}, nil
}

// Fail builds a failed response carrying the given error kind and message.
func Fail(kind, message string) Response {
	return Response{OK: false, Error: &WireError{Kind: kind, Message: message}}
}

// EncodeResponse marshals a Response to its wire JSON form.
func EncodeResponse(r Response) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("wire: encode response: %w", err)
	}
	return b, nil
}

// DecodeResponse unmarshals a wire payload into a Response.
func DecodeResponse(payload []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(payload, &r); err != nil {
		return Response{}, fmt.Errorf("wire: decode response: %w", err)
	}
	return r, nil
}

// Unmarshal decodes a successful response's value into dst. Callers must
// check OK before calling this.
func (r Response) Unmarshal(dst any) error {
	if len(r.Value) == 0 {
		return nil
	}
	return json.Unmarshal(r.Value, dst)
}
