package protocol

import (
	"encoding/base64"
	"encoding/json"
)

// Body is a message body that can be sealed into an envelope.
type Body interface {
	// CorrelationID returns the body id.
	CorrelationID() string
	// SignedData returns the raw "data" field covered by the signature.
	SignedData() json.RawMessage
}

// Request is the body a client sends: {id, data}.
type Request struct {
	ID   Scalar          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (r Request) CorrelationID() string       { return r.ID.String() }
func (r Request) SignedData() json.RawMessage { return r.Data }

// ValidateBasic rejects a falsy id such as "", 0 or false.
func (r Request) ValidateBasic() error {
	if !r.ID.Truthy() {
		return ErrMissingID
	}
	return nil
}

// Response is the body a gateway answers with: {id, code, message, result}.
type Response struct {
	ID      Scalar          `json:"id"`
	Code    Scalar          `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r Response) CorrelationID() string { return r.ID.String() }

// SignedData is always empty: responses carry no data field, so the
// signature covers "{}".
func (r Response) SignedData() json.RawMessage { return nil }

// Envelope is one sealed protocol message.
type Envelope struct {
	Meta    Meta
	Payload []byte
}

func (e *Envelope) Base64() string {
	return base64.StdEncoding.EncodeToString(e.Payload)
}

// DecodeInput describes a payload to open. Meta is optional; when nil no
// metadata validation happens.
type DecodeInput struct {
	Meta    Meta
	Payload []byte
	// Encoded is the base64 form of the payload, used when Payload is empty.
	Encoded string
	Key     string
	Secret  string
}
