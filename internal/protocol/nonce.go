package protocol

import (
	"crypto/rand"
	"strings"
)

const nonceLength = 8

// Nonce returns n random decimal digits; leading zeros are kept.
func Nonce(n int) string {
	if n <= 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, n)
	for sb.Len() < n {
		_, _ = rand.Read(buf)
		for _, b := range buf {
			// 250 is the largest multiple of 10 below 256.
			if b >= 250 {
				continue
			}
			sb.WriteByte('0' + b%10)
			if sb.Len() == n {
				break
			}
		}
	}
	return sb.String()
}
