package models

import "time"

// AlgorithmAES256CBC is the only algorithm tag written to identity_keys.
const AlgorithmAES256CBC = "AES-256-CBC"

// IdentityKey is the per-identity encryption key material. At most one row
// exists per identity; deleting it is the crypto-shred operation and there
// is no recovery path afterwards.
type IdentityKey struct {
	ID         int64
	IdentityID int64
	KeyB64     string
	IVB64      string
	Algorithm  string
	CreatedAt  time.Time
}
