package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonce(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		n := Nonce(8)
		require.Len(t, n, 8)
		for _, c := range n {
			require.True(t, c >= '0' && c <= '9', "non-digit in %q", n)
		}
		seen[n] = struct{}{}
	}
	require.Greater(t, len(seen), 60)
	require.Empty(t, Nonce(0))
}

func TestSign_KnownDigest(t *testing.T) {
	// md5("k" + "1" + "2" + "{}" + "s")
	require.Equal(t, "8980699ccd61fa05db06fa0213e4c025", sign("k", "1", "2", []byte("{}"), "s"))
}

func TestScalar(t *testing.T) {
	tests := []struct {
		in      string
		text    string
		numeric bool
	}{
		{in: `"123"`, text: "123"},
		{in: `123`, text: "123", numeric: true},
		{in: `2000000`, text: "2000000", numeric: true},
		{in: `null`, text: ""},
		{in: `true`, text: "true"},
	}
	for _, tc := range tests {
		var s Scalar
		require.NoError(t, json.Unmarshal([]byte(tc.in), &s))
		require.Equal(t, tc.text, s.String())
		require.Equal(t, tc.numeric, s.IsNumeric())
	}

	var s Scalar
	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &s))

	out, err := json.Marshal(struct {
		A Scalar `json:"a"`
		B Scalar `json:"b"`
	}{A: ScalarString("1"), B: ScalarInt(1)})
	require.NoError(t, err)
	require.Equal(t, `{"a":"1","b":1}`, string(out))

	n, ok := ScalarString("403").Int()
	require.True(t, ok)
	require.Equal(t, 403, n)
	_, ok = ScalarString("abc").Int()
	require.False(t, ok)
}

func TestScalar_Truthy(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: `null`, want: false},
		{in: `""`, want: false},
		{in: `0`, want: false},
		{in: `0.0`, want: false},
		{in: `false`, want: false},
		{in: `true`, want: true},
		{in: `"0"`, want: true},
		{in: `"false"`, want: true},
		{in: `17`, want: true},
	}
	for _, tc := range tests {
		var s Scalar
		require.NoError(t, json.Unmarshal([]byte(tc.in), &s))
		require.Equal(t, tc.want, s.Truthy(), tc.in)
	}

	var s Scalar
	require.NoError(t, json.Unmarshal([]byte(`false`), &s))
	out, err := json.Marshal(s)
	require.NoError(t, err)
	require.Equal(t, `false`, string(out))
}

func TestRequest_ValidateBasic(t *testing.T) {
	for _, body := range []string{`{"data":{}}`, `{"id":0}`, `{"id":false}`, `{"id":""}`, `{"id":null}`} {
		var req Request
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		require.ErrorIs(t, req.ValidateBasic(), ErrMissingID, body)
	}

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"id":"0"}`), &req))
	require.NoError(t, req.ValidateBasic())
}

func TestMetaFromHeader(t *testing.T) {
	h := http.Header{}
	h.Set("X-Mg-Appkey", "test")
	h.Set("X-MG-LEN", "16")
	h.Set("Content-Type", "application/octet-stream")

	meta := MetaFromHeader(h)
	require.Equal(t, "test", meta[HeaderAppKey])
	require.Equal(t, "16", meta.Get("X-Mg-Len"))
	require.NotContains(t, meta, "content-type")

	out := http.Header{}
	meta.Apply(out)
	require.Equal(t, "test", out.Get(HeaderAppKey))
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindDecode, Code: CodeClientDecode, Message: "decode error, boom", Err: cause})

	perr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, CodeClientDecode, perr.Code)
	require.True(t, IsKind(err, KindDecode))
	require.False(t, IsKind(err, KindNetwork))
	require.ErrorIs(t, err, cause)

	require.Equal(t, "PermissionError", (&Error{Kind: KindPermission}).Error())
}
