// Package cryptox implements the field-level encryption primitives used by
// the vault: AES-256 in CBC mode with PKCS#7 padding, one key/IV pair per
// identity, applied to every sensitive field of that identity.
//
// CBC with a reused IV means equal plaintext blocks across fields of the
// same identity produce equal ciphertext blocks, and there is no integrity
// tag, so a corrupted ciphertext whose padding still validates decrypts to
// garbage without an error. Both properties are part of the stored-data
// contract and must not be changed without a format migration.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecryption is wrapped by every decrypt failure: bad base64, a
// ciphertext that is not a whole number of blocks, or invalid padding
// (wrong key/IV or corrupted data).
var ErrDecryption = errors.New("decryption error")

// Encrypt encrypts a single field value under the given base64-encoded
// 256-bit key and 128-bit IV, returning base64 ciphertext. A nil plaintext
// passes through as nil: absence is stored as absence, not encrypted.
func Encrypt(plaintext *string, keyB64, ivB64 string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}

	block, iv, err := newBlock(keyB64, ivB64)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad([]byte(*plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	enc := base64.StdEncoding.EncodeToString(out)
	return &enc, nil
}

// Decrypt is the inverse of Encrypt: nil in, nil out. Failures wrap
// ErrDecryption. Note that a tampered ciphertext whose final block still
// ends in valid padding decrypts without error.
func Decrypt(ciphertext *string, keyB64, ivB64 string) (*string, error) {
	if ciphertext == nil {
		return nil, nil
	}

	block, iv, err := newBlock(keyB64, ivB64)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(*ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecryption, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrDecryption, len(raw))
	}

	padded := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, raw)

	plain, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}

	s := string(plain)
	return &s, nil
}

func newBlock(keyB64, ivB64 string) (cipher.Block, []byte, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid key encoding: %v", ErrDecryption, err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid iv encoding: %v", ErrDecryption, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryption, aes.BlockSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return block, iv, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}
