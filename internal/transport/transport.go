// Package transport performs the network exchange for one envelope.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Request is one outbound exchange.
type Request struct {
	URL     string
	Method  string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is what came back. RT and Size are zero when unknown.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	RT     time.Duration
	Size   int64
}

// Transport sends a request and returns the response. Any returned error
// means no response was received.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

type Options struct {
	// Timeout is the ceiling for any single exchange.
	Timeout             time.Duration
	MaxIdleConns        int
	IdleConnTimeout     time.Duration
	InsecureSkipVerify  bool
	DisableKeepAlives   bool
	MaxIdleConnsPerHost int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 256
	}
	if o.MaxIdleConnsPerHost <= 0 {
		o.MaxIdleConnsPerHost = o.MaxIdleConns
	}
	if o.IdleConnTimeout <= 0 {
		o.IdleConnTimeout = 4 * time.Second
	}
	return o
}

// HTTP is a Transport over a pooled keep-alive net/http client.
type HTTP struct {
	client *http.Client
}

func NewHTTP(opts Options) *HTTP {
	opts = opts.withDefaults()
	rt := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     opts.IdleConnTimeout,
		DisableKeepAlives:   opts.DisableKeepAlives,
		ForceAttemptHTTP2:   true,
	}
	if opts.InsecureSkipVerify {
		rt.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed gateways
	}
	return &HTTP{client: &http.Client{Transport: rt, Timeout: opts.Timeout}}
}

// NewHTTPWithClient wraps an existing client, e.g. httptest.Server.Client().
func NewHTTPWithClient(client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client}
}

func (t *HTTP) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/octet-stream")
	}

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   body,
		RT:     time.Since(start),
		Size:   int64(len(body)),
	}, nil
}

func (t *HTTP) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}
