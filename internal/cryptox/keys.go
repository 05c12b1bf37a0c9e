package cryptox

import (
	"crypto/rand"
	"encoding/base64"
)

const (
	keySize = 32 // AES-256
	ivSize  = 16 // CBC block size
)

// GenerateKeyIV produces a fresh random 256-bit key and 128-bit IV,
// base64-encoded. Every call returns new material; pairing the result
// with an identity is the caller's job.
func GenerateKeyIV() (keyB64, ivB64 string, err error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", "", err
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(key), base64.StdEncoding.EncodeToString(iv), nil
}
