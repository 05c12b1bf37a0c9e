// Package auth provides the credential and token capabilities consumed by
// the services: an argon2id password hasher and an HS256 JWT issuer.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params controls the argon2id cost settings baked into produced
// hashes. Stored hashes carry their own parameters, so verification works
// across parameter changes.
type Argon2Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLen     int
	KeyLen      uint32
}

var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 2,
	SaltLen:     16,
	KeyLen:      32,
}

// Argon2Hasher hashes and verifies passwords using argon2id with an
// encoded hash format:
//
//	argon2id$m=<M>,t=<T>,p=<P>$<b64(salt)>$<b64(key)>
type Argon2Hasher struct {
	params Argon2Params
}

func NewArgon2Hasher(p Argon2Params) *Argon2Hasher {
	return &Argon2Hasher{params: p}
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLen)

	return fmt.Sprintf("argon2id$m=%d,t=%d,p=%d$%s$%s",
		h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the encoded hash. Malformed
// hashes verify false rather than erroring: to callers a broken stored
// hash is the same as a wrong password.
func (h *Argon2Hasher) Verify(password, encoded string) bool {
	const prefix = "argon2id$"
	if !strings.HasPrefix(encoded, prefix) {
		return false
	}
	parts := strings.Split(encoded[len(prefix):], "$")
	if len(parts) != 3 {
		return false
	}

	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[0], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	keyRef, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(keyRef) == 0 {
		return false
	}

	key := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(keyRef)))
	return subtle.ConstantTimeCompare(key, keyRef) == 1
}
