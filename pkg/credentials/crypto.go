package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// gcmNonceSize is the nonce length prepended to every ciphertext
const gcmNonceSize = 12

// Decrypt reverses Encrypt: base64 decode, split off the nonce, AES-GCM open.
// Any structural problem with the ciphertext is reported as an error; the
// caller maps it to its own failure taxonomy.
func Decrypt(encrypted string, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	if len(ciphertext) < gcmNonceSize {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce := ciphertext[:gcmNonceSize]
	ciphertext = ciphertext[gcmNonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("opening ciphertext: %w", err)
	}
	return string(plaintext), nil
}

// Encrypt seals plaintext with AES-GCM under key and returns
// base64(nonce || ciphertext). The monitor itself never re-encrypts stored
// credentials; this exists for provisioning tooling and tests.
func Encrypt(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
