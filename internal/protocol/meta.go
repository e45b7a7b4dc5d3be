package protocol

import (
	"net/http"
	"strings"
)

// Envelope metadata header names. They travel as HTTP headers and are
// matched case-insensitively on the wire, but always stored lowercase here.
const (
	HeaderUserAgent = "user-agent"
	HeaderAgent     = "x-mg-agent"
	HeaderAlg       = "x-mg-alg"
	HeaderTs        = "x-mg-ts"
	HeaderNonce     = "x-mg-nonce"
	HeaderAppKey    = "x-mg-appkey"
	HeaderSign      = "x-mg-sign"
	HeaderLen       = "x-mg-len"
	HeaderCode      = "x-mg-code"
)

const (
	UserAgent = "maga-client-go/v1.0"
	// AgentServer is the legacy role marker sent by SDK clients.
	AgentServer = "server"
	AlgAES128   = "AES-128"
)

var metaHeaders = []string{
	HeaderUserAgent,
	HeaderAgent,
	HeaderAlg,
	HeaderTs,
	HeaderNonce,
	HeaderAppKey,
	HeaderSign,
	HeaderLen,
	HeaderCode,
}

// Meta is the flat out-of-band metadata of an envelope.
type Meta map[string]string

// Get returns the value for name regardless of its case.
func (m Meta) Get(name string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[name]; ok {
		return v
	}
	return m[strings.ToLower(name)]
}

func (m Meta) Clone() Meta {
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Apply writes every metadata field into h, replacing existing values.
func (m Meta) Apply(h http.Header) {
	for k, v := range m {
		h.Set(k, v)
	}
}

// IsProtocolField reports whether name is one of the x-mg-* fields.
func IsProtocolField(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "x-mg-")
}

// MetaFromHeader collects the envelope metadata present in h.
func MetaFromHeader(h http.Header) Meta {
	m := make(Meta, len(metaHeaders))
	for _, name := range metaHeaders {
		if v := h.Get(name); v != "" {
			m[name] = v
		}
	}
	return m
}

// MetaFromMap normalizes arbitrary header-like keys to lowercase.
func MetaFromMap(in map[string]string) Meta {
	m := make(Meta, len(in))
	for k, v := range in {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return m
}
