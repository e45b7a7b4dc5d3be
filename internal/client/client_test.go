package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"maga/internal/keystore"
	"maga/internal/logging"
	"maga/internal/protocol"
	"maga/internal/server"
	"maga/internal/transport"

	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test"
	testSecret = "my-test-secret"
)

type transportFunc func(ctx context.Context, req *transport.Request) (*transport.Response, error)

func (f transportFunc) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return f(ctx, req)
}

func newTestClient(t *testing.T, tr transport.Transport, required *bool) *Client {
	t.Helper()
	c, err := New(Options{
		Key:       testKey,
		Secret:    testSecret,
		Host:      "http://gateway.local",
		Required:  required,
		Logger:    logging.Discard(),
		Transport: tr,
	})
	require.NoError(t, err)
	return c
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	s, err := server.New(server.Options{Keystore: keystore.Map{testKey: testSecret}, Logger: logging.Discard()})
	require.NoError(t, err)
	return s
}

// gateway answers every request through a server.Server, returning
// whatever result produces for the decoded request.
func gateway(t *testing.T, result func(req *protocol.Request) any) transportFunc {
	srv := newTestServer(t)
	return func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		in, err := srv.Decode(ctx, protocol.MetaFromHeader(req.Header), req.Body)
		if err != nil {
			data, ok := server.ResponseDataOf(err)
			require.True(t, ok)
			body, _ := json.Marshal(data.Payload)
			return &transport.Response{Status: data.Payload.Code, Body: body}, nil
		}
		env, err := srv.Response(ctx, server.ResponseInput{
			Key:    req.Header.Get(protocol.HeaderAppKey),
			ID:     in.ID.String(),
			Result: result(in),
		})
		if err != nil {
			return nil, err
		}
		header := http.Header{}
		env.Meta.Apply(header)
		return &transport.Response{
			Status: http.StatusOK,
			Header: header,
			Body:   env.Payload,
			RT:     12 * time.Millisecond,
			Size:   int64(len(env.Payload)),
		}, nil
	}
}

// raw answers with a response body sealed directly by the codec.
func raw(t *testing.T, body protocol.Response) transportFunc {
	return func(context.Context, *transport.Request) (*transport.Response, error) {
		env, err := protocol.NewCodec(nil).Encode(body, testKey, testSecret)
		require.NoError(t, err)
		return &transport.Response{Status: http.StatusOK, Body: env.Payload}, nil
	}
}

func status(code int, body string) transportFunc {
	return func(context.Context, *transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: code, Body: []byte(body)}, nil
	}
}

func boolPtr(b bool) *bool { return &b }

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Secret: testSecret})
	require.ErrorIs(t, err, ErrMissingKey)
	require.True(t, protocol.IsKind(err, protocol.KindValidation))

	_, err = New(Options{Key: testKey})
	require.ErrorIs(t, err, ErrMissingSecret)

	c, err := New(Options{Key: testKey, Secret: testSecret})
	require.NoError(t, err)
	require.Equal(t, testKey, c.Key())
	require.Equal(t, DefaultHost, c.host)
	require.Equal(t, DefaultTimeout, c.timeout)
	require.True(t, c.required)
}

func TestRequest_LiftsState(t *testing.T) {
	var seen *protocol.Request
	c := newTestClient(t, gateway(t, func(req *protocol.Request) any {
		seen = req
		return map[string]any{
			"data":  map[string]any{"from": "server"},
			"state": map[string]any{"code": 2000000, "msg": "suc"},
		}
	}), nil)

	res, err := c.Request(context.Background(), RequestConfig{ID: "42", Service: "/api/echo", Data: map[string]any{"q": "x"}})
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, "42", res.ID)
	require.JSONEq(t, `{"from":"server"}`, string(res.Data))
	require.Equal(t, "2000000", res.State.Code.String())
	require.Equal(t, "suc", res.State.Msg)
	require.Equal(t, int64(12), res.State.RT)
	require.Positive(t, res.State.Size)
	require.Equal(t, "200", res.Headers.Get(protocol.HeaderCode))

	require.NotNil(t, seen)
	require.Equal(t, "42", seen.ID.String())
	require.JSONEq(t, `{"q":"x"}`, string(seen.Data))

	var out struct {
		From string `json:"from"`
	}
	require.NoError(t, res.Unmarshal(&out))
	require.Equal(t, "server", out.From)
}

func TestRequest_StateKeepsExtraFields(t *testing.T) {
	c := newTestClient(t, raw(t, protocol.Response{
		ID:     protocol.ScalarString("9"),
		Code:   protocol.ScalarInt(200),
		Result: json.RawMessage(`{"data":{"n":1},"state":{"code":"2000000","msg":5,"total":9,"rt":1.5,"page":{"no":2}}}`),
	}), nil)

	res, err := c.Request(context.Background(), RequestConfig{ID: "9", Service: "/list"})
	require.NoError(t, err)
	require.Equal(t, "2000000", res.State.Code.String())
	require.Equal(t, "5", res.State.Msg)
	require.Equal(t, int64(1), res.State.RT)
	require.JSONEq(t, `9`, string(res.State.Extra["total"]))
	require.JSONEq(t, `{"no":2}`, string(res.State.Extra["page"]))

	out, err := json.Marshal(res.State)
	require.NoError(t, err)
	var merged map[string]any
	require.NoError(t, json.Unmarshal(out, &merged))
	require.Equal(t, "2000000", merged["code"])
	require.Equal(t, "5", merged["msg"])
	require.EqualValues(t, 9, merged["total"])
}

func TestRequest_NonObjectStateKeepsGatewayState(t *testing.T) {
	c := newTestClient(t, raw(t, protocol.Response{
		ID:      protocol.ScalarString("9"),
		Code:    protocol.ScalarInt(200),
		Message: "ok",
		Result:  json.RawMessage(`{"data":{"n":1},"state":true}`),
	}), nil)

	res, err := c.Request(context.Background(), RequestConfig{ID: "9", Service: "/list"})
	require.NoError(t, err)
	require.Equal(t, "200", res.State.Code.String())
	require.Equal(t, "ok", res.State.Msg)
	require.Nil(t, res.State.Extra)
}

func TestRequest_EmptyDataBecomesObject(t *testing.T) {
	c := newTestClient(t, gateway(t, func(*protocol.Request) any {
		return map[string]any{"data": nil, "state": map[string]any{"code": 0, "msg": "empty"}}
	}), nil)

	res, err := c.Request(context.Background(), RequestConfig{Service: "/api/empty"})
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(res.Data))
	require.Equal(t, "empty", res.State.Msg)
}

func TestRequest_LegacyShape(t *testing.T) {
	c := newTestClient(t, gateway(t, func(*protocol.Request) any {
		return map[string]any{"list": []int{1, 2}}
	}), nil)

	res, err := c.Request(context.Background(), RequestConfig{Service: "/api/legacy"})
	require.NoError(t, err)
	require.JSONEq(t, `{"list":[1,2]}`, string(res.Data))
	require.Equal(t, LegacyWarning, res.State.Msg)
	require.Equal(t, "200", res.State.Code.String())
}

func TestRequest_ZeroCodeFallsBackToStatus(t *testing.T) {
	c := newTestClient(t, raw(t, protocol.Response{
		ID:     protocol.ScalarString("7"),
		Code:   protocol.ScalarInt(0),
		Result: json.RawMessage(`[1,2,3]`),
	}), nil)

	res, err := c.Request(context.Background(), RequestConfig{ID: "7", Service: "/x"})
	require.NoError(t, err)
	code, ok := res.State.Code.Int()
	require.True(t, ok)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `[1,2,3]`, string(res.Data))
	require.Equal(t, LegacyWarning, res.State.Msg)
}

func TestRequest_DecodeFailures(t *testing.T) {
	tests := []struct {
		name    string
		tr      transportFunc
		message string
	}{
		{
			name:    "id mismatch",
			tr:      raw(t, protocol.Response{ID: protocol.ScalarString("other"), Code: protocol.ScalarInt(200), Result: json.RawMessage(`{}`)}),
			message: "response id other is not equals request id 1",
		},
		{
			name:    "missing result",
			tr:      raw(t, protocol.Response{ID: protocol.ScalarString("1"), Code: protocol.ScalarInt(200)}),
			message: "response result is missing",
		},
		{
			name:    "not encrypted",
			tr:      status(http.StatusOK, "plain text, not a payload"),
			message: "decode error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.tr, nil)
			_, err := c.Request(context.Background(), RequestConfig{ID: "1", Service: "/x"})

			perr, ok := protocol.AsError(err)
			require.True(t, ok)
			require.Equal(t, protocol.KindDecode, perr.Kind)
			require.Equal(t, protocol.CodeClientDecode, perr.Code)
			require.Contains(t, perr.Message, "decode error, ")
			require.Contains(t, perr.Message, tt.message)
			require.Equal(t, "1", perr.ID)

			encoded, ok := perr.Data.(string)
			require.True(t, ok)
			_, decodeErr := base64.StdEncoding.DecodeString(encoded)
			require.NoError(t, decodeErr)
		})
	}
}

func TestRequest_GatewayErrors(t *testing.T) {
	tests := []struct {
		name    string
		tr      transportFunc
		code    int
		message string
	}{
		{
			name:    "json body",
			tr:      status(http.StatusForbidden, `{"code":403,"message":"app key permission denied"}`),
			code:    403,
			message: "gateway error, app key permission denied, url=http://gateway.local/x, id=1",
		},
		{
			name:    "raw body",
			tr:      status(http.StatusInternalServerError, "upstream exploded"),
			code:    protocol.CodeClientDecode,
			message: "gateway error, upstream exploded, url=http://gateway.local/x, id=1",
		},
		{
			name:    "json body without code",
			tr:      status(http.StatusBadGateway, `{"message":"bad upstream"}`),
			code:    http.StatusBadGateway,
			message: "gateway error, bad upstream",
		},
		{
			name:    "json string body",
			tr:      status(http.StatusServiceUnavailable, `"busy"`),
			code:    http.StatusServiceUnavailable,
			message: `gateway error, "busy", url=`,
		},
		{
			name:    "json array body",
			tr:      status(http.StatusBadGateway, `[]`),
			code:    http.StatusBadGateway,
			message: "gateway error, [], url=",
		},
		{
			name:    "non-string message",
			tr:      status(http.StatusTooManyRequests, `{"code":"429","message":7}`),
			code:    429,
			message: "gateway error, 7, url=",
		},
		{
			name:    "empty body",
			tr:      status(http.StatusBadGateway, ""),
			code:    protocol.CodeClientDecode,
			message: "gateway error, , url=",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.tr, nil)
			_, err := c.Request(context.Background(), RequestConfig{ID: "1", Service: "/x"})

			perr, ok := protocol.AsError(err)
			require.True(t, ok)
			require.Equal(t, protocol.KindGateway, perr.Kind)
			require.Equal(t, tt.code, perr.Code)
			require.Contains(t, perr.Message, tt.message)
			require.IsType(t, GatewayErrorBody{}, perr.Data)
		})
	}
}

func TestRequest_GatewayRejectsUnknownKey(t *testing.T) {
	c, err := New(Options{
		Key:       "stranger",
		Secret:    "whatever",
		Host:      "http://gateway.local",
		Logger:    logging.Discard(),
		Transport: gateway(t, func(*protocol.Request) any { return map[string]any{} }),
	})
	require.NoError(t, err)

	_, err = c.Request(context.Background(), RequestConfig{ID: "1", Service: "/x"})
	perr, ok := protocol.AsError(err)
	require.True(t, ok)
	require.Equal(t, protocol.KindGateway, perr.Kind)
	require.Equal(t, 403, perr.Code)
}

func TestRequest_NetworkFailure(t *testing.T) {
	c := newTestClient(t, transportFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		return nil, errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	}), nil)

	_, err := c.Request(context.Background(), RequestConfig{ID: "9", Service: "/x"})
	perr, ok := protocol.AsError(err)
	require.True(t, ok)
	require.Equal(t, protocol.KindNetwork, perr.Kind)
	require.Equal(t, protocol.CodeNetwork, perr.Code)
	require.Contains(t, perr.Message, "connection refused")

	cfg, ok := perr.Data.(RequestConfig)
	require.True(t, ok)
	require.Equal(t, "9", cfg.ID)
	require.Equal(t, "http://gateway.local/x", cfg.URL)
}

func TestRequest_NotRequiredReturnsResult(t *testing.T) {
	c := newTestClient(t, status(http.StatusServiceUnavailable, "down"), nil)

	res, err := c.Request(context.Background(), RequestConfig{
		ID:      "5",
		Service: "/x",
		Options: CallOptions{Required: boolPtr(false)},
	})
	require.NoError(t, err)
	require.True(t, res.Failed())
	require.Equal(t, "5", res.ID)
	require.Equal(t, protocol.KindGateway, res.Error.Kind)

	var out map[string]any
	require.ErrorIs(t, res.Unmarshal(&out), res.Error)
}

func TestRequest_ClientRequiredDefault(t *testing.T) {
	c := newTestClient(t, status(http.StatusServiceUnavailable, "down"), boolPtr(false))

	res, err := c.Request(context.Background(), RequestConfig{Service: "/x"})
	require.NoError(t, err)
	require.True(t, res.Failed())

	_, err = c.Request(context.Background(), RequestConfig{Service: "/x", Options: CallOptions{Required: boolPtr(true)}})
	require.True(t, protocol.IsKind(err, protocol.KindGateway))
}

func TestRequest_ValidationIgnoresRequired(t *testing.T) {
	c := newTestClient(t, status(http.StatusOK, ""), boolPtr(false))
	ctx := context.Background()

	_, err := c.Request(ctx, RequestConfig{Service: "api/no-slash"})
	require.ErrorIs(t, err, ErrServicePrefix)

	_, err = c.Request(ctx, RequestConfig{})
	require.ErrorIs(t, err, ErrMissingTarget)

	_, err = c.Request(ctx, RequestConfig{Service: "/x", Data: []int{1, 2}})
	require.ErrorIs(t, err, ErrDataNotObject)
	require.True(t, protocol.IsKind(err, protocol.KindValidation))

	_, err = c.Request(ctx, RequestConfig{Service: "/x", Data: "text"})
	require.ErrorIs(t, err, ErrDataNotObject)
}

func TestRequest_PageInjection(t *testing.T) {
	var seen *protocol.Request
	c := newTestClient(t, gateway(t, func(req *protocol.Request) any {
		seen = req
		return map[string]any{}
	}), nil)

	_, err := c.Request(context.Background(), RequestConfig{Service: "/list", Data: map[string]any{"q": "x", "page": 1}, Page: 3})
	require.NoError(t, err)
	require.JSONEq(t, `{"q":"x","page":3}`, string(seen.Data))

	_, err = c.Request(context.Background(), RequestConfig{Service: "/list", Page: 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"page":2}`, string(seen.Data))

	_, err = c.Request(context.Background(), RequestConfig{Service: "/list", Data: json.RawMessage(`{"z":1,"page":0,"a":2.0}`), Page: 5})
	require.NoError(t, err)
	require.Equal(t, `{"z":1,"page":5,"a":2}`, string(seen.Data))
}

func TestRequest_HeadersAndTarget(t *testing.T) {
	var sent *transport.Request
	inner := gateway(t, func(*protocol.Request) any { return map[string]any{} })
	c := newTestClient(t, transportFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		sent = req
		return inner(ctx, req)
	}), nil)

	_, err := c.Request(context.Background(), RequestConfig{
		Service: "/api/v1",
		Headers: http.Header{
			"X-Mg-Appkey": {"spoofed"},
			"User-Agent":  {"custom-agent/2"},
			"X-Trace":     {"abc"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "http://gateway.local/api/v1", sent.URL)
	require.Equal(t, http.MethodPost, sent.Method)
	require.Equal(t, DefaultTimeout, sent.Timeout)
	require.Equal(t, testKey, sent.Header.Get(protocol.HeaderAppKey))
	require.Len(t, sent.Header.Values(protocol.HeaderAppKey), 1)
	require.Equal(t, protocol.UserAgent, sent.Header.Get(protocol.HeaderUserAgent))
	require.Len(t, sent.Header.Values(protocol.HeaderUserAgent), 1)
	require.Equal(t, "abc", sent.Header.Get("X-Trace"))
	require.Equal(t, protocol.AlgAES128, sent.Header.Get(protocol.HeaderAlg))

	_, err = c.Request(context.Background(), RequestConfig{
		URL:     "http://elsewhere.local/raw",
		Options: CallOptions{Timeout: 150 * time.Millisecond},
	})
	require.NoError(t, err)
	require.Equal(t, "http://elsewhere.local/raw", sent.URL)
	require.Equal(t, 150*time.Millisecond, sent.Timeout)
	require.Equal(t, protocol.UserAgent, sent.Header.Get(protocol.HeaderUserAgent))
}

func TestRequest_DefaultID(t *testing.T) {
	var seen *protocol.Request
	c := newTestClient(t, gateway(t, func(req *protocol.Request) any {
		seen = req
		return map[string]any{}
	}), nil)
	c.now = func() time.Time { return time.UnixMilli(1493970302763) }

	res, err := c.Request(context.Background(), RequestConfig{Service: "/x"})
	require.NoError(t, err)
	require.Equal(t, "1493970302763", seen.ID.String())
	require.Equal(t, "1493970302763", res.ID)
}

func TestRequest_OverHTTP(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		in, err := srv.Decode(r.Context(), protocol.MetaFromHeader(r.Header), body)
		if err != nil {
			data, _ := server.ResponseDataOf(err)
			data.WriteResponse(w)
			return
		}
		env, err := srv.Response(r.Context(), server.ResponseInput{
			Key:    r.Header.Get(protocol.HeaderAppKey),
			ID:     in.ID.String(),
			Result: map[string]any{"data": json.RawMessage(in.Data), "state": map[string]any{"code": 200, "msg": "echo"}},
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		env.Meta.Apply(w.Header())
		_, _ = w.Write(env.Payload)
	}))
	defer ts.Close()

	c, err := New(Options{
		Key:       testKey,
		Secret:    testSecret,
		Host:      ts.URL,
		Logger:    logging.Discard(),
		Transport: transport.NewHTTPWithClient(ts.Client()),
	})
	require.NoError(t, err)

	res, err := c.Request(context.Background(), RequestConfig{Service: "/echo", Data: map[string]any{"hello": "world"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"hello":"world"}`, string(res.Data))
	require.Equal(t, "echo", res.State.Msg)
	require.Equal(t, "200", res.Headers.Get(protocol.HeaderCode))
}
