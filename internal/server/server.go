// Package server opens inbound request envelopes and seals responses for
// a gateway-facing service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"maga/internal/keystore"
	"maga/internal/logging"
	"maga/internal/metrics"
	"maga/internal/protocol"
)

const (
	DefaultCode    = http.StatusOK
	DefaultMessage = "success"

	permissionDenied = "app key permission denied"
)

var (
	ErrMissingKeystore = errors.New("server: keystore is required")
	ErrMissingMeta     = errors.New("server: meta headers is required")
	ErrMissingAppKey   = errors.New("server: x-mg-appkey is required at meta")
	ErrMissingPayload  = errors.New("server: payload is required")
	ErrMissingID       = errors.New("server: id is required, should pass request id")
)

type Options struct {
	Keystore keystore.Keystore
	Logger   logging.Logger
	Metrics  bool
}

type Server struct {
	keystore keystore.Keystore
	logger   logging.Logger
	codec    *protocol.Codec
	metrics  bool
}

func New(opts Options) (*Server, error) {
	if opts.Keystore == nil {
		return nil, protocol.NewValidationError(ErrMissingKeystore)
	}
	logger := logging.Safe(opts.Logger)
	return &Server{
		keystore: opts.Keystore,
		logger:   logger,
		codec:    protocol.NewCodec(logger),
		metrics:  opts.Metrics,
	}, nil
}

// ResponseData is an error rendered as the response a gateway should send.
type ResponseData struct {
	Meta    protocol.Meta `json:"meta"`
	Payload ErrorPayload  `json:"payload"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteResponse emits the error as an HTTP response with status = code.
func (d ResponseData) WriteResponse(w http.ResponseWriter) {
	d.Meta.Apply(w.Header())
	w.Header().Set("Content-Type", "application/json")
	status := d.Payload.Code
	if status < 100 || status > 999 {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(d.Payload)
}

func responseError(kind protocol.Kind, code int, message string, cause error) *protocol.Error {
	return &protocol.Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     cause,
		Data: ResponseData{
			Meta:    protocol.Meta{protocol.HeaderCode: strconv.Itoa(code)},
			Payload: ErrorPayload{Code: code, Message: message},
		},
	}
}

// ResponseDataOf extracts the response-shaped payload of a server error.
func ResponseDataOf(err error) (ResponseData, bool) {
	perr, ok := protocol.AsError(err)
	if !ok {
		return ResponseData{}, false
	}
	data, ok := perr.Data.(ResponseData)
	return data, ok
}

// Decode opens an inbound request, validating every metadata field
// against the secret registered for its appkey.
func (s *Server) Decode(ctx context.Context, meta protocol.Meta, payload []byte) (*protocol.Request, error) {
	if meta == nil {
		return nil, protocol.NewValidationError(ErrMissingMeta)
	}
	key := meta.Get(protocol.HeaderAppKey)
	if key == "" {
		return nil, protocol.NewValidationError(ErrMissingAppKey)
	}
	if len(payload) == 0 {
		return nil, protocol.NewValidationError(ErrMissingPayload)
	}

	secret, err := s.secret(ctx, key)
	if err != nil {
		s.record(err)
		return nil, err
	}

	req, err := s.codec.DecodeRequest(protocol.DecodeInput{Meta: meta, Payload: payload, Key: key, Secret: secret})
	if err == nil {
		err = req.ValidateBasic()
	}
	if err != nil {
		perr := responseError(protocol.KindDecode, protocol.CodeServerDecode, "decode error, "+err.Error(), err)
		s.logger.Warn("decode request failed", "appkey", key, "err", err.Error())
		s.record(perr)
		return nil, perr
	}

	s.record(nil)
	return req, nil
}

// ResponseInput describes a response to seal.
type ResponseInput struct {
	// Key selects the secret; normally the appkey of the request.
	Key    string
	ID     string
	Result any
	// Code defaults to 200 and Msg to "success".
	Code int
	Msg  string
}

// Response seals {id, code, message, result} and sets x-mg-code so the
// status is visible without decrypting.
func (s *Server) Response(ctx context.Context, in ResponseInput) (*protocol.Envelope, error) {
	if in.ID == "" {
		return nil, protocol.NewValidationError(ErrMissingID)
	}
	if in.Code == 0 {
		in.Code = DefaultCode
	}
	if in.Msg == "" {
		in.Msg = DefaultMessage
	}

	result, err := protocol.CanonicalJSON(in.Result)
	if err != nil {
		return nil, protocol.NewValidationError(err)
	}
	body := protocol.Response{
		ID:      protocol.ScalarString(in.ID),
		Code:    protocol.ScalarInt(in.Code),
		Message: in.Msg,
		Result:  result,
	}
	s.logger.Info("prepare response to client", "id", in.ID, "code", in.Code, "msg", in.Msg)
	s.logger.Debug("origin response", "result", string(result))

	secret, err := s.secret(ctx, in.Key)
	if err != nil {
		return nil, err
	}
	env, err := s.codec.Encode(body, in.Key, secret)
	if err != nil {
		return nil, protocol.NewValidationError(err)
	}
	env.Meta[protocol.HeaderCode] = strconv.Itoa(in.Code)

	s.logger.Debug("send response to client", "payload", env.Base64(), "meta", map[string]string(env.Meta))
	return env, nil
}

func (s *Server) secret(ctx context.Context, key string) (string, error) {
	secret, err := s.keystore.Lookup(ctx, key)
	if err == nil {
		return secret, nil
	}
	if errors.Is(err, keystore.ErrNotFound) {
		s.logger.Error("key not found at keystore", "appkey", key)
		return "", responseError(protocol.KindPermission, protocol.CodePermission, permissionDenied, err)
	}
	s.logger.Error("keystore lookup failed", "appkey", key, "err", err.Error())
	return "", responseError(protocol.KindKeystore, protocol.CodeKeystore, "keystore unavailable", err)
}

func (s *Server) record(err error) {
	if !s.metrics {
		return
	}
	outcome := metrics.OutcomeOK
	if perr, ok := protocol.AsError(err); ok {
		outcome = string(perr.Kind)
	}
	metrics.RecordServerDecode(outcome)
}
