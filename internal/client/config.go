package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"maga/internal/protocol"
)

var (
	ErrDataNotObject = errors.New("client: config.data must be object")
	ErrServicePrefix = errors.New("client: config.service must start with `/`")
	ErrMissingTarget = errors.New("client: config.service or config.url is required")
)

// RequestConfig describes one call.
type RequestConfig struct {
	// ID is the correlation id; defaults to the current epoch milliseconds.
	ID      string `json:"id,omitempty"`
	Service string `json:"service,omitempty"`
	// URL overrides Host + Service.
	URL string `json:"url,omitempty"`
	// Data must marshal to a JSON object.
	Data any `json:"data,omitempty"`
	// Page, when positive, is copied into data.page.
	Page    int         `json:"page,omitempty"`
	Headers http.Header `json:"headers,omitempty"`
	Options CallOptions `json:"options,omitempty"`
}

type CallOptions struct {
	Timeout time.Duration `json:"timeout,omitempty"`
	// Required selects whether a failed call returns an error (true) or a
	// Result carrying the error (false). Nil falls back to the client default.
	Required *bool `json:"required,omitempty"`
}

func (cfg RequestConfig) validate() error {
	if cfg.Service != "" && !strings.HasPrefix(cfg.Service, "/") {
		return ErrServicePrefix
	}
	if cfg.Service == "" && cfg.URL == "" {
		return ErrMissingTarget
	}
	return nil
}

// requestData renders the data object, applying page when set.
func requestData(data any, page int) (json.RawMessage, error) {
	var raw []byte
	switch v := data.(type) {
	case nil:
		raw = []byte("{}")
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := protocol.CanonicalJSON(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if raw[0] != '{' || !json.Valid(raw) {
		return nil, ErrDataNotObject
	}

	if page > 0 {
		return protocol.WithField(raw, "page", page)
	}
	return protocol.CanonicalJSON(json.RawMessage(raw))
}
