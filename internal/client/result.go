package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"maga/internal/protocol"
	"maga/internal/transport"
)

// LegacyWarning marks a response whose result had no {data, state} shape.
const LegacyWarning = "warning: response missing { data, state }"

var errMissingResult = errors.New("response result is missing")

// Result is the simplified view of a gateway response.
type Result struct {
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data,omitempty"`
	State   State           `json:"state"`
	Headers http.Header     `json:"headers,omitempty"`
	// Error is set instead of returning an error when the call is not required.
	Error *protocol.Error `json:"error,omitempty"`
}

// State merges the gateway status with the business state of the result.
// Keys of the business state other than code, msg, rt and size are kept
// in Extra.
type State struct {
	Code protocol.Scalar `json:"code"`
	Msg  string          `json:"msg"`
	// RT is the round-trip time in milliseconds.
	RT    int64                      `json:"rt,omitempty"`
	Size  int64                      `json:"size,omitempty"`
	Extra map[string]json.RawMessage `json:"-"`
}

func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+4)
	for k, v := range s.Extra {
		out[k] = v
	}
	out["code"] = s.Code
	out["msg"] = s.Msg
	if s.RT != 0 {
		out["rt"] = s.RT
	}
	if s.Size != 0 {
		out["size"] = s.Size
	}
	return json.Marshal(out)
}

// UnmarshalJSON merges a state object over s. Only keys present in b are
// changed; a key whose value does not fit its typed field lands in Extra.
func (s *State) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	for k, v := range fields {
		switch k {
		case "code":
			var code protocol.Scalar
			if err := json.Unmarshal(v, &code); err == nil {
				s.Code = code
				continue
			}
		case "msg":
			s.Msg = stateText(v)
			continue
		case "rt", "size":
			var f float64
			if err := json.Unmarshal(v, &f); err == nil {
				if k == "rt" {
					s.RT = int64(f)
				} else {
					s.Size = int64(f)
				}
				continue
			}
		}
		if s.Extra == nil {
			s.Extra = make(map[string]json.RawMessage)
		}
		s.Extra[k] = v
	}
	return nil
}

// stateText renders a msg value of any JSON type as text.
func stateText(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if string(v) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(v, &text); err == nil {
		return text
	}
	return string(v)
}

// Failed reports whether the call failed and returned its error as a value.
func (r *Result) Failed() bool {
	return r != nil && r.Error != nil
}

// Unmarshal decodes Data into v.
func (r *Result) Unmarshal(v any) error {
	if r.Error != nil {
		return r.Error
	}
	data := r.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return json.Unmarshal(data, v)
}

// simplify collapses {id, code, message, result} into a Result. When
// result carries a state it is lifted; otherwise the whole result is data.
func simplify(body *protocol.Response, resp *transport.Response) (*Result, error) {
	raw := bytes.TrimSpace(body.Result)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errMissingResult
	}

	code := body.Code
	if !code.Truthy() {
		code = protocol.ScalarInt(resp.Status)
	}
	res := &Result{
		ID: body.ID.String(),
		State: State{
			Code: code,
			Msg:  body.Message,
			RT:   resp.RT.Milliseconds(),
			Size: resp.Size,
		},
		Headers: resp.Header,
	}

	var shaped struct {
		Data  json.RawMessage `json:"data"`
		State json.RawMessage `json:"state"`
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &shaped); err != nil {
			return nil, err
		}
	}

	if !truthyJSON(shaped.State) {
		res.Data = json.RawMessage(raw)
		res.State.Msg = LegacyWarning
		return res, nil
	}

	res.Data = shaped.Data
	if !truthyJSON(res.Data) {
		res.Data = json.RawMessage("{}")
	}
	// A non-object state has no fields to spread over the gateway state.
	if state := bytes.TrimSpace(shaped.State); state[0] == '{' {
		if err := json.Unmarshal(state, &res.State); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// truthyJSON follows JavaScript truthiness for a raw JSON value.
func truthyJSON(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return f != 0
	}
	return true
}
