// Package client calls a remote gateway with sealed envelopes.
//
// One call is one stateless request/response exchange: encode, send,
// classify or decode, simplify. The client keeps no per-call state and is
// safe for concurrent use. Retries are left to the caller.
package client

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"maga/internal/logging"
	"maga/internal/protocol"
	"maga/internal/transport"
)

const (
	DefaultHost    = "https://wx-maga.aligames.com"
	DefaultTimeout = 5 * time.Second
)

var (
	ErrMissingKey    = errors.New("client: key is required")
	ErrMissingSecret = errors.New("client: secret is required")
)

type Options struct {
	Key    string
	Secret string
	// Host is prefixed to RequestConfig.Service; no trailing slash.
	Host    string
	Timeout time.Duration
	// Required is the default for CallOptions.Required; nil means true.
	Required  *bool
	Logger    logging.Logger
	Transport transport.Transport
	// Metrics records per-call outcomes in the prometheus registry.
	Metrics bool
}

type Client struct {
	key       string
	secret    string
	host      string
	timeout   time.Duration
	required  bool
	metrics   bool
	logger    logging.Logger
	transport transport.Transport
	codec     *protocol.Codec
	now       func() time.Time
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Key) == "" {
		return nil, protocol.NewValidationError(ErrMissingKey)
	}
	if opts.Secret == "" {
		return nil, protocol.NewValidationError(ErrMissingSecret)
	}
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	required := true
	if opts.Required != nil {
		required = *opts.Required
	}
	if opts.Transport == nil {
		opts.Transport = transport.NewHTTP(transport.Options{})
	}
	logger := logging.Safe(opts.Logger)

	return &Client{
		key:       opts.Key,
		secret:    opts.Secret,
		host:      strings.TrimSuffix(opts.Host, "/"),
		timeout:   opts.Timeout,
		required:  required,
		metrics:   opts.Metrics,
		logger:    logger,
		transport: opts.Transport,
		codec:     protocol.NewCodec(logger),
		now:       time.Now,
	}, nil
}

// Key returns the application key the client signs with.
func (c *Client) Key() string { return c.key }

// Encode seals body with the client's key and secret.
func (c *Client) Encode(body protocol.Body) (*protocol.Envelope, error) {
	return c.codec.Encode(body, c.key, c.secret)
}

// Decode opens a payload with the client's key and secret. Metadata is
// validated only when in.Meta is set.
func (c *Client) Decode(in protocol.DecodeInput) (json.RawMessage, error) {
	in.Key = c.key
	in.Secret = c.secret
	return c.codec.Decode(in)
}
