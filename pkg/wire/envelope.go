package wire

import (
	"github.com/bytedance/sonic"
)

// Envelope is the top-level JSON-RPC 2.0 style object exchanged between
// client and driver. Request frames set Method/Params/ID; response frames
// set ID plus exactly one of Result/Error.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  map[string]any  `json:"params,omitempty"`
	ID      string          `json:"id,omitempty"`
	Result  map[string]any  `json:"result,omitempty"`
	Error   *EnvelopeError  `json:"error,omitempty"`
}

// EnvelopeError is the wire representation of an RPC-level error.
type EnvelopeError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

const protocolVersion = "2.0"

// NewRequestEnvelope builds a request-shaped Envelope ready for marshaling.
func NewRequestEnvelope(method string, params map[string]any, id string) Envelope {
	return Envelope{JSONRPC: protocolVersion, Method: method, Params: params, ID: id}
}

// NewResultEnvelope builds a success-shaped response Envelope.
func NewResultEnvelope(id string, result map[string]any) Envelope {
	return Envelope{JSONRPC: protocolVersion, ID: id, Result: result}
}

// NewErrorEnvelope builds an error-shaped response Envelope.
func NewErrorEnvelope(id string, code int, message string, data map[string]any) Envelope {
	return Envelope{
		JSONRPC: protocolVersion,
		ID:      id,
		Error:   &EnvelopeError{Code: code, Message: message, Data: data},
	}
}

// Marshal serializes the envelope with sonic, the JSON engine the teacher
// uses for its own inter-process wire format (cmd/v2broker/transport).
func Marshal(e Envelope) ([]byte, error) {
	return sonic.Marshal(e)
}

// Unmarshal decodes a wire payload into an Envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := sonic.Unmarshal(data, &e)
	return e, err
}

// IsError reports whether the envelope carries an error response.
func (e Envelope) IsError() bool {
	return e.Error != nil
}
