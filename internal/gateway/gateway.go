// Package gateway is a reference HTTP front for the server handler: it
// opens inbound envelopes, dispatches them by path and seals the result.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"maga/internal/logging"
	"maga/internal/metrics"
	"maga/internal/protocol"
	"maga/internal/server"

	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"

	defaultMaxBodyBytes = 1 << 20
)

var ErrMissingServer = errors.New("gateway: server is required")

// Dispatcher produces the result for a decoded request. service is the
// request path. A returned *protocol.Error with a 4xx/5xx code is written
// with that status; any other error becomes a 500.
type Dispatcher func(ctx context.Context, service string, req *protocol.Request) (any, error)

// Echo answers every request with its own data in {data, state} form.
func Echo(_ context.Context, _ string, req *protocol.Request) (any, error) {
	data := req.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return map[string]any{
		"data":  data,
		"state": map[string]any{"code": server.DefaultCode, "msg": server.DefaultMessage},
	}, nil
}

type Options struct {
	Server   *server.Server
	Dispatch Dispatcher
	// Limiter may be nil to disable rate limiting.
	Limiter      *Limiter
	Logger       logging.Logger
	Metrics      bool
	MaxBodyBytes int64
}

type Gateway struct {
	server   *server.Server
	dispatch Dispatcher
	limiter  *Limiter
	logger   logging.Logger
	metrics  bool
	maxBody  int64
	now      func() time.Time
}

func New(opts Options) (*Gateway, error) {
	if opts.Server == nil {
		return nil, ErrMissingServer
	}
	if opts.Dispatch == nil {
		opts.Dispatch = Echo
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Gateway{
		server:   opts.Server,
		dispatch: opts.Dispatch,
		limiter:  opts.Limiter,
		logger:   logging.Safe(opts.Logger),
		metrics:  opts.Metrics,
		maxBody:  opts.MaxBodyBytes,
		now:      time.Now,
	}, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	traceID := r.Header.Get(HeaderRequestID)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, traceID)

	start := g.now()
	status := g.handle(w, r)
	if g.metrics {
		metrics.RecordGatewayRequest(status)
	}
	g.logger.Info("gateway request",
		"trace_id", traceID,
		"service", r.URL.Path,
		"appkey", r.Header.Get(protocol.HeaderAppKey),
		"status", status,
		"duration_ms", g.now().Sub(start).Milliseconds(),
	)
}

func (g *Gateway) handle(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		return writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}

	appKey := r.Header.Get(protocol.HeaderAppKey)
	if !g.limiter.Allow(appKey, g.now()) {
		return writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.maxBody))
	if err != nil {
		return writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	}

	ctx := r.Context()
	req, err := g.server.Decode(ctx, protocol.MetaFromHeader(r.Header), body)
	if err != nil {
		return writeProtocolError(w, err, http.StatusBadRequest)
	}

	result, err := g.dispatch(ctx, r.URL.Path, req)
	if err != nil {
		g.logger.Warn("dispatch failed", "service", r.URL.Path, "id", req.ID.String(), "err", err.Error())
		return writeProtocolError(w, err, http.StatusInternalServerError)
	}

	env, err := g.server.Response(ctx, server.ResponseInput{Key: appKey, ID: req.ID.String(), Result: result})
	if err != nil {
		return writeProtocolError(w, err, http.StatusInternalServerError)
	}

	env.Meta.Apply(w.Header())
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(env.Payload)
	return http.StatusOK
}

// writeProtocolError writes err as {code, message}. Response-shaped server
// errors keep their own code; fallback is used for anything else.
func writeProtocolError(w http.ResponseWriter, err error, fallback int) int {
	if data, ok := server.ResponseDataOf(err); ok {
		data.WriteResponse(w)
		return data.Payload.Code
	}
	if perr, ok := protocol.AsError(err); ok && perr.Code >= 400 && perr.Code <= 599 {
		return writeError(w, perr.Code, perr.Message)
	}
	return writeError(w, fallback, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) int {
	w.Header().Set(protocol.HeaderCode, strconv.Itoa(status))
	writeJSON(w, status, server.ErrorPayload{Code: status, Message: message})
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
