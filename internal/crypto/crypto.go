// Package crypto exposes the signing and payload-encryption capability the
// connector layer consumes: HMAC-SHA256 sign/verify for request signatures
// and webhook sources, and AES-256-GCM for encrypted webhook payloads. The
// algorithms themselves are fixed elsewhere; this package only wraps them
// behind a small, testable surface.
package crypto

import (
	aescipher "crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrKeySize is returned when an AES key is not exactly 32 bytes.
var ErrKeySize = errors.New("crypto: AES-256-GCM requires a 32-byte key")

// ErrDecrypt is returned when a ciphertext fails authentication or is
// structurally invalid. A wrong key must surface as this error, never as a
// different-but-successful decode.
var ErrDecrypt = errors.New("crypto: decryption failed")

// SignHMACSHA256 computes the HMAC-SHA256 tag of message under secret.
func SignHMACSHA256(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// SignHMACSHA256Hex is SignHMACSHA256 with a lowercase hex-encoded tag,
// the encoding most connectors put in signature headers.
func SignHMACSHA256Hex(secret, message []byte) string {
	return hex.EncodeToString(SignHMACSHA256(secret, message))
}

// VerifyHMACSHA256 reports whether signature is the valid tag of message
// under secret, in constant time.
func VerifyHMACSHA256(secret, message, signature []byte) bool {
	expected := SignHMACSHA256(secret, message)
	return hmac.Equal(expected, signature)
}

// Digest returns the SHA-256 digest of body, used for signed body digests
// and plain-digest webhook verification.
func Digest(body []byte) []byte {
	sum := sha256.Sum256(body)
	return sum[:]
}

// DigestHex is Digest with lowercase hex encoding.
func DigestHex(body []byte) string {
	return hex.EncodeToString(Digest(body))
}

// VerifyDigest compares a provided digest against the body's SHA-256 in
// constant time.
func VerifyDigest(body, digest []byte) bool {
	expected := Digest(body)
	return subtle.ConstantTimeCompare(expected, digest) == 1
}

// EncryptAES256GCM seals plaintext under a 32-byte key. The random nonce is
// prepended to the returned ciphertext.
func EncryptAES256GCM(key, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptAES256GCM opens a ciphertext produced by EncryptAES256GCM.
func DecryptAES256GCM(key, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aescipher.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return cipher.NewGCM(block)
}
