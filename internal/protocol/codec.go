package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"maga/internal/logging"
)

// Codec seals and opens envelopes. It holds no state besides its logger
// and is safe for concurrent use.
type Codec struct {
	logger logging.Logger
	now    func() time.Time
}

func NewCodec(logger logging.Logger) *Codec {
	return &Codec{logger: logging.Safe(logger), now: time.Now}
}

// Encode seals body for the application identified by key.
func (c *Codec) Encode(body Body, key, secret string) (*Envelope, error) {
	if body == nil {
		return nil, ErrMissingBody
	}
	if strings.TrimSpace(body.CorrelationID()) == "" {
		return nil, ErrMissingID
	}
	if key == "" {
		return nil, ErrMissingKey
	}
	if secret == "" {
		return nil, ErrMissingSecret
	}

	plain, err := canonicalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal body: %w", err)
	}
	data, err := encodeSignData(body.SignedData())
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal data: %w", err)
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	nonce := Nonce(nonceLength)
	sig := sign(key, nonce, ts, data, secret)

	c.logger.Debug("encode input", "body", string(plain))

	payload, err := encrypt(plain, secret)
	if err != nil {
		return nil, err
	}
	meta := Meta{
		HeaderUserAgent: UserAgent,
		HeaderAgent:     AgentServer,
		HeaderAlg:       AlgAES128,
		HeaderTs:        ts,
		HeaderNonce:     nonce,
		HeaderAppKey:    key,
		HeaderSign:      sig,
		HeaderLen:       strconv.Itoa(len(payload)),
	}

	c.logger.Debug("encode output", "payload", base64.StdEncoding.EncodeToString(payload), "meta", map[string]string(meta))
	return &Envelope{Meta: meta, Payload: payload}, nil
}

// Decode opens a payload and returns the plaintext body. When in.Meta is
// set the metadata and signature are validated against key and secret.
func (c *Codec) Decode(in DecodeInput) (json.RawMessage, error) {
	payload := in.Payload
	if len(payload) == 0 && in.Encoded != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(in.Encoded))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		payload = raw
	}
	if len(payload) == 0 {
		return nil, ErrMissingPayload
	}

	c.logger.Debug("decode input", "payload", base64.StdEncoding.EncodeToString(payload))

	plain, err := decrypt(payload, in.Secret)
	if err != nil {
		return nil, err
	}
	var fields struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(plain, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if in.Meta != nil {
		if err := validateMeta(in.Meta, in.Key, in.Secret, len(payload), fields.Data); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("decode output", "body", string(plain))
	return json.RawMessage(plain), nil
}

// DecodeRequest opens a request envelope.
func (c *Codec) DecodeRequest(in DecodeInput) (*Request, error) {
	plain, err := c.Decode(in)
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(plain, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &req, nil
}

// DecodeResponse opens a response envelope.
func (c *Codec) DecodeResponse(in DecodeInput) (*Response, error) {
	plain, err := c.Decode(in)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(plain, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &resp, nil
}

func validateMeta(meta Meta, key, secret string, payloadLen int, data json.RawMessage) error {
	if meta.Get(HeaderAlg) != AlgAES128 {
		return ErrAlgMismatch
	}
	if meta.Get(HeaderAppKey) != key {
		return ErrAppKeyMismatch
	}
	nonce := meta.Get(HeaderNonce)
	if nonce == "" {
		return ErrMissingNonce
	}
	ts := meta.Get(HeaderTs)
	if ts == "" {
		return ErrMissingTimestamp
	}
	if meta.Get(HeaderLen) != strconv.Itoa(payloadLen) {
		return ErrLengthMismatch
	}
	signed, err := decodeSignData(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if !signEqual(meta.Get(HeaderSign), sign(key, nonce, ts, signed, secret)) {
		return ErrSignatureMismatch
	}
	return nil
}
