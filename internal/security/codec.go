package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Encode returns the URL-safe, unpadded base64 form of b.
func Encode(b []byte) string {
	s := base64.StdEncoding.EncodeToString(b)
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return strings.TrimRight(s, "=")
}

// Decode reverses Encode. Padding is restored before decoding.
func Decode(s string) ([]byte, error) {
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return base64.URLEncoding.DecodeString(s)
}

// Sign computes HMAC-SHA256 of data keyed by secret and encodes it with Encode.
func Sign(secret []byte, data string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	return Encode(mac.Sum(nil))
}

// Equal reports whether a and b are identical in constant time.
// Both sides are reduced to SHA-256 digests first so the comparison
// always runs over equal-length buffers.
func Equal(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return hmac.Equal(da[:], db[:]) && len(a) == len(b)
}
