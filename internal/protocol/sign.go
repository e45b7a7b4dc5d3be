package protocol

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
)

// sign is MD5(key + nonce + ts + data + secret), hex encoded. MD5 is weak;
// it stays because every deployed peer computes exactly this digest.
func sign(key, nonce, ts string, data []byte, secret string) string {
	h := md5.New()
	h.Write([]byte(key))
	h.Write([]byte(nonce))
	h.Write([]byte(ts))
	h.Write(data)
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

func signEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
