package protocol

import (
	"crypto/aes"
	"crypto/sha256"
)

// The cipher is AES-128 in ECB mode with PKCS#7 padding and a key derived
// from the first 16 bytes of SHA-256(secret). Identical plaintext blocks
// produce identical ciphertext blocks and there is no per-message IV.
// This is a legacy construction kept for wire compatibility; a new,
// non-interoperable deployment should move to an AEAD and bump the
// protocol version.

func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:aes.BlockSize]
}

func encrypt(plain []byte, secret string) ([]byte, error) {
	if len(plain) == 0 {
		return nil, ErrEmptyPlaintext
	}
	if secret == "" {
		return nil, ErrMissingSecret
	}
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	padded := pkcs7Pad(plain, bs)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += bs {
		block.Encrypt(out[i:i+bs], padded[i:i+bs])
	}
	return out, nil
}

func decrypt(data []byte, secret string) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrMissingPayload
	}
	if secret == "" {
		return nil, ErrMissingSecret
	}
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(data)%bs != 0 {
		return nil, ErrBlockLength
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		block.Decrypt(out[i:i+bs], data[i:i+bs])
	}
	return pkcs7Unpad(out, bs)
}

func pkcs7Pad(in []byte, bs int) []byte {
	n := bs - len(in)%bs
	out := make([]byte, len(in)+n)
	copy(out, in)
	for i := len(in); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(in []byte, bs int) ([]byte, error) {
	if len(in) == 0 || len(in)%bs != 0 {
		return nil, ErrBlockLength
	}
	n := int(in[len(in)-1])
	if n == 0 || n > bs {
		return nil, ErrBadPadding
	}
	for _, b := range in[len(in)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return in[:len(in)-n], nil
}
