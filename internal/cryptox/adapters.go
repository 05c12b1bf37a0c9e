package cryptox

// AESFieldCipher adapts the package functions to the cipher interface the
// services consume.
type AESFieldCipher struct{}

func (AESFieldCipher) Encrypt(plaintext *string, keyB64, ivB64 string) (*string, error) {
	return Encrypt(plaintext, keyB64, ivB64)
}

func (AESFieldCipher) Decrypt(ciphertext *string, keyB64, ivB64 string) (*string, error) {
	return Decrypt(ciphertext, keyB64, ivB64)
}

// RandKeyManager generates fresh random key material on every call.
type RandKeyManager struct{}

func (RandKeyManager) GenerateKeyIV() (string, string, error) {
	return GenerateKeyIV()
}
