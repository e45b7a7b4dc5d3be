package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"maga/internal/metrics"
	"maga/internal/protocol"
	"maga/internal/transport"
)

// Request performs one call. Precondition failures are always returned as
// errors. Any other failure is returned as an error when the call is
// required, or as Result.Error with a nil error otherwise.
func (c *Client) Request(ctx context.Context, cfg RequestConfig) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, protocol.NewValidationError(err)
	}
	data, err := requestData(cfg.Data, cfg.Page)
	if err != nil {
		return nil, protocol.NewValidationError(err)
	}

	c.logger.Debug("prepare request", "service", cfg.Service, "url", cfg.URL, "id", cfg.ID, "data", string(data))

	if cfg.ID == "" {
		cfg.ID = strconv.FormatInt(c.now().UnixMilli(), 10)
	}
	if cfg.URL == "" {
		cfg.URL = c.host + cfg.Service
	}

	env, err := c.Encode(protocol.Request{ID: protocol.ScalarString(cfg.ID), Data: data})
	if err != nil {
		return nil, protocol.NewValidationError(err)
	}

	start := time.Now()
	res, perr := c.exchange(ctx, cfg, env)
	if perr == nil {
		c.record(metrics.OutcomeOK, start)
		c.logger.Debug("got response detail", "id", res.ID, "data", string(res.Data), "state", res.State)
		return res, nil
	}

	if perr.ID == "" {
		perr.ID = cfg.ID
	}
	c.record(string(perr.Kind), start)
	c.logger.Error("got response err", "err", perr.Message, "code", perr.Code, "url", cfg.URL, "id", perr.ID)

	if !c.isRequired(cfg) {
		return &Result{ID: perr.ID, Error: perr}, nil
	}
	return nil, perr
}

func (c *Client) exchange(ctx context.Context, cfg RequestConfig, env *protocol.Envelope) (*Result, *protocol.Error) {
	header := make(http.Header, len(cfg.Headers)+len(env.Meta))
	for k, vs := range cfg.Headers {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	for k, v := range env.Meta {
		header.Set(k, v)
	}

	timeout := cfg.Options.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.logger.Info("send request", "url", cfg.URL, "id", cfg.ID)
	resp, err := c.transport.Send(ctx, &transport.Request{
		URL:     cfg.URL,
		Method:  http.MethodPost,
		Header:  header,
		Body:    env.Payload,
		Timeout: timeout,
	})
	if err != nil {
		return nil, &protocol.Error{
			Kind:    protocol.KindNetwork,
			Code:    protocol.CodeNetwork,
			Message: err.Error(),
			ID:      cfg.ID,
			Data:    cfg,
			Err:     err,
		}
	}

	if resp.Status < 200 || resp.Status > 299 {
		return nil, gatewayError(resp, cfg.URL, cfg.ID)
	}

	res, err := c.decodeResponse(resp, cfg.ID)
	if err != nil {
		return nil, &protocol.Error{
			Kind:    protocol.KindDecode,
			Code:    protocol.CodeClientDecode,
			Message: "decode error, " + err.Error(),
			ID:      cfg.ID,
			Data:    base64.StdEncoding.EncodeToString(resp.Body),
			Err:     err,
		}
	}
	return res, nil
}

// decodeResponse opens the response without metadata validation: the
// client only needs the body, and responses are not signature-checked.
func (c *Client) decodeResponse(resp *transport.Response, id string) (*Result, error) {
	body, err := c.codec.DecodeResponse(protocol.DecodeInput{Payload: resp.Body, Key: c.key, Secret: c.secret})
	if err != nil {
		return nil, err
	}

	c.logger.Info("got response", "id", body.ID.String(), "code", body.Code.String(), "message", body.Message)

	if body.ID.String() != id {
		return nil, fmt.Errorf("response id %s is not equals request id %s", body.ID.String(), id)
	}
	return simplify(body, resp)
}

// GatewayErrorBody is the JSON error a gateway answers with outside 2xx.
type GatewayErrorBody struct {
	Code    protocol.Scalar `json:"code"`
	Message string          `json:"message"`
}

func gatewayError(resp *transport.Response, url, id string) *protocol.Error {
	body := parseGatewayError(resp.Body)
	code, ok := body.Code.Int()
	if !ok || code == 0 {
		code = resp.Status
	}
	return &protocol.Error{
		Kind:    protocol.KindGateway,
		Code:    code,
		Message: fmt.Sprintf("gateway error, %s, url=%s, id=%s", body.Message, url, id),
		ID:      id,
		Data:    body,
	}
}

// parseGatewayError reads an error body. Text that is not JSON maps to
// the client decode code; JSON without a usable code leaves Code empty so
// the HTTP status applies.
func parseGatewayError(raw []byte) GatewayErrorBody {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return GatewayErrorBody{Code: protocol.ScalarInt(protocol.CodeClientDecode), Message: string(raw)}
	}
	var fields map[string]json.RawMessage
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &fields) != nil {
		return GatewayErrorBody{Message: string(trimmed)}
	}
	var body GatewayErrorBody
	if v, ok := fields["code"]; ok {
		_ = json.Unmarshal(v, &body.Code)
	}
	if v, ok := fields["message"]; ok {
		body.Message = stateText(v)
	}
	return body
}

func (c *Client) isRequired(cfg RequestConfig) bool {
	if cfg.Options.Required != nil {
		return *cfg.Options.Required
	}
	return c.required
}

func (c *Client) record(outcome string, start time.Time) {
	if !c.metrics {
		return
	}
	metrics.RecordClientRequest(outcome, time.Since(start))
}
