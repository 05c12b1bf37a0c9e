package models

import "time"

// Identity is the stored form of an identity. The *CT fields hold base64
// AES-256-CBC ciphertext and are only meaningful together with the
// matching IdentityKey row; everything else is plaintext metadata.
type Identity struct {
	ID           int64
	EmailCT      string
	CPFCT        string
	FullNameCT   *string
	PhoneCT      *string
	PasswordHash string
	VIP          bool
	Active       bool
	RoleID       *int64
	CreatedByID  *int64
	UpdatedByID  *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PlainIdentity is the decrypted view returned to callers. It never
// reaches storage.
type PlainIdentity struct {
	ID        int64
	Email     string
	CPF       string
	FullName  *string
	Phone     *string
	VIP       bool
	Active    bool
	RoleID    *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
