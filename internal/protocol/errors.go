package protocol

import (
	"errors"
)

var (
	ErrMissingBody       = errors.New("protocol: body is required")
	ErrMissingID         = errors.New("protocol: id is required")
	ErrMissingKey        = errors.New("protocol: app key is required")
	ErrMissingSecret     = errors.New("protocol: secret is required")
	ErrMissingPayload    = errors.New("protocol: payload is required")
	ErrInvalidPayload    = errors.New("protocol: payload is not valid base64")
	ErrEmptyPlaintext    = errors.New("protocol: nothing to encrypt")
	ErrBlockLength       = errors.New("protocol: wrong final block length")
	ErrBadPadding        = errors.New("protocol: bad decrypt")
	ErrInvalidJSON       = errors.New("protocol: plaintext is not a JSON object")
	ErrAlgMismatch       = errors.New("protocol: x-mg-alg only support AES-128")
	ErrAppKeyMismatch    = errors.New("protocol: x-mg-appkey is not match")
	ErrMissingNonce      = errors.New("protocol: x-mg-nonce is required")
	ErrMissingTimestamp  = errors.New("protocol: x-mg-ts is required")
	ErrLengthMismatch    = errors.New("protocol: x-mg-len is not match")
	ErrSignatureMismatch = errors.New("protocol: x-mg-sign is not match")
)

// Kind names the class of a failed call.
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindNetwork    Kind = "NetworkFailure"
	KindGateway    Kind = "HttpStatusError"
	KindDecode     Kind = "ProtocolDecodeError"
	KindPermission Kind = "PermissionError"
	KindKeystore   Kind = "KeystoreError"
)

const (
	CodeNetwork      = -1
	CodeClientDecode = -3
	CodeServerDecode = 400
	CodePermission   = 403
	CodeKeystore     = 503
)

// Error is the error value that crosses the client and server boundaries.
// The codec never returns it; callers classify codec failures into one.
type Error struct {
	Kind    Kind   `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Data    any    `json:"data,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidationError reports a violated local precondition.
func NewValidationError(cause error) *Error {
	return &Error{Kind: KindValidation, Message: cause.Error(), Err: cause}
}

func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	perr, ok := AsError(err)
	return ok && perr.Kind == kind
}
