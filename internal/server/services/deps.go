// Package services contains the server-side business logic: the decrypt
// scan lookup, the identity vault lifecycle, and authentication. Services
// receive their capabilities (cipher, key generation, password hashing,
// token issuing) through constructors; there is no global registry.
package services

// FieldCipher encrypts and decrypts single field values under a
// caller-supplied base64 key and IV. nil passes through as nil.
type FieldCipher interface {
	Encrypt(plaintext *string, keyB64, ivB64 string) (*string, error)
	Decrypt(ciphertext *string, keyB64, ivB64 string) (*string, error)
}

// KeyManager produces fresh key material. It has no persistence duty;
// pairing the material with an identity is the vault's job.
type KeyManager interface {
	GenerateKeyIV() (keyB64, ivB64 string, err error)
}

// PasswordHasher is the opaque credential capability. Verify must treat a
// malformed stored hash as a mismatch.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

// TokenIssuer is the opaque claims-to-token capability.
type TokenIssuer interface {
	Issue(subject int64, name, email string) (string, error)
}
