// Package credential protects the text-to-speech API key at rest.
//
// The key is encrypted with AES-CBC and PKCS#7 padding. The ciphertext, the
// AES key and the IV are stored side by side as base64 strings, which keeps
// values produced by earlier tooling readable.
package credential

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// DefaultKeySize is the AES key size used when none is requested (AES-256).
const DefaultKeySize = 32

var (
	// ErrInvalidInput is returned when the secret, key or IV is missing or unusable.
	ErrInvalidInput = errors.New("invalid credential input")
	// ErrCipher is returned when the AES primitive rejects the key or IV length.
	ErrCipher = errors.New("cipher rejected key material")
	// ErrDecryption is returned when a stored credential cannot be decrypted.
	ErrDecryption = errors.New("credential decryption failed")
)

// Credential is the persisted form of the API key.
type Credential struct {
	EncryptedAPIKey string `yaml:"encrypted_api_key" mapstructure:"encrypted_api_key"`
	AESKey          string `yaml:"aes_key" mapstructure:"aes_key"`
	AESIV           string `yaml:"aes_iv" mapstructure:"aes_iv"`
}

// IsComplete reports whether all three values are present.
func (c Credential) IsComplete() bool {
	return c.EncryptedAPIKey != "" && c.AESKey != "" && c.AESIV != ""
}

// HasKeyMaterial reports whether an AES key and IV are stored.
func (c Credential) HasKeyMaterial() bool {
	return c.AESKey != "" && c.AESIV != ""
}

// Decrypt returns the plaintext API key.
func (c Credential) Decrypt() (string, error) {
	if !c.IsComplete() {
		return "", fmt.Errorf("%w: encrypted key, AES key and AES IV must all be set", ErrDecryption)
	}

	key, err := base64.StdEncoding.DecodeString(c.AESKey)
	if err != nil {
		return "", fmt.Errorf("%w: AES key is not valid base64", ErrDecryption)
	}
	iv, err := base64.StdEncoding.DecodeString(c.AESIV)
	if err != nil {
		return "", fmt.Errorf("%w: AES IV is not valid base64", ErrDecryption)
	}

	return Decrypt(c.EncryptedAPIKey, key, iv)
}

// GenerateKeyAndIV returns a random AES key of keySize bytes and a random
// block-sized IV. A keySize of 0 selects DefaultKeySize.
func GenerateKeyAndIV(keySize int) (key, iv []byte, err error) {
	if keySize == 0 {
		keySize = DefaultKeySize
	}
	if !validKeySize(keySize) {
		return nil, nil, fmt.Errorf("%w: key size %d, want 16, 24 or 32", ErrCipher, keySize)
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	iv = make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	return key, iv, nil
}

// Encrypt encrypts plaintext and returns the base64 ciphertext.
func Encrypt(plaintext, key, iv []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("%w: secret is empty", ErrInvalidInput)
	}
	if len(key) == 0 || len(iv) == 0 {
		return "", fmt.Errorf("%w: AES key and IV are required", ErrInvalidInput)
	}
	if !isText(plaintext) {
		return "", fmt.Errorf("%w: secret must be printable UTF-8 text", ErrInvalidInput)
	}

	block, err := newBlock(key, iv)
	if err != nil {
		return "", err
	}

	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
//
// CBC is unauthenticated. A tampered ciphertext is rejected when it breaks
// the padding or produces non-text bytes, which covers every single-bit flip
// in the ciphertext with overwhelming probability. A flipped IV bit is not
// detectable.
func Decrypt(ciphertext string, key, iv []byte) (string, error) {
	if ciphertext == "" || len(key) == 0 || len(iv) == 0 {
		return "", fmt.Errorf("%w: ciphertext, key and IV are required", ErrDecryption)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid base64", ErrDecryption)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrDecryption, len(raw))
	}

	block, err := newBlock(key, iv)
	if err != nil {
		return "", errors.Join(ErrDecryption, err)
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, raw)

	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if len(plain) == 0 || !isText(plain) {
		return "", fmt.Errorf("%w: decrypted value is not text", ErrDecryption)
	}

	return string(plain), nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if !validKeySize(len(key)) {
		return nil, fmt.Errorf("%w: key length %d, want 16, 24 or 32", ErrCipher, len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: IV length %d, want %d", ErrCipher, len(iv), aes.BlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}
	return block, nil
}

func validKeySize(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// pad applies PKCS#7 padding.
func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}

// isText accepts valid UTF-8 without control characters other than
// tab, newline and carriage return.
func isText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
