package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignHMACSHA256_KnownVector(t *testing.T) {
	secret := []byte("hmac_secret_1234")
	message := []byte(`{"type":"payment_intent"}`)
	const expectedHex = "d5550730377011948f12cc28889bee590d2a5434d6f54b87562f2dbc2657823e"

	assert.Equal(t, expectedHex, SignHMACSHA256Hex(secret, message))
}

func TestVerifyHMACSHA256(t *testing.T) {
	secret := []byte("hmac_secret_1234")
	message := []byte(`{"type":"payment_intent"}`)
	signature := SignHMACSHA256(secret, message)

	t.Run("CorrectSignature", func(t *testing.T) {
		assert.True(t, VerifyHMACSHA256(secret, message, signature))
	})

	t.Run("SingleBitFlippedSignature", func(t *testing.T) {
		tampered := make([]byte, len(signature))
		copy(tampered, signature)
		tampered[0] ^= 0x01
		assert.False(t, VerifyHMACSHA256(secret, message, tampered))
	})

	t.Run("WrongSecret", func(t *testing.T) {
		assert.False(t, VerifyHMACSHA256([]byte("other_secret"), message, signature))
	})
}

func TestAES256GCM_RoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef") // 32 bytes
	plaintext := []byte(`{"type":"PAYMENT"}`)

	ciphertext, err := EncryptAES256GCM(key, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := DecryptAES256GCM(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAES256GCM_FlippedKeyByteFailsClosed(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	plaintext := []byte(`{"type":"PAYMENT"}`)

	ciphertext, err := EncryptAES256GCM(key, plaintext)
	require.NoError(t, err)

	wrongKey := make([]byte, len(key))
	copy(wrongKey, key)
	wrongKey[7] ^= 0x01

	out, err := DecryptAES256GCM(wrongKey, ciphertext)
	assert.ErrorIs(t, err, ErrDecrypt)
	assert.Nil(t, out, "a wrong key must never yield a successful decode")
}

func TestAES256GCM_KeySize(t *testing.T) {
	_, err := EncryptAES256GCM([]byte("short"), []byte("x"))
	assert.ErrorIs(t, err, ErrKeySize)

	_, err = DecryptAES256GCM([]byte("short"), []byte("x"))
	assert.ErrorIs(t, err, ErrKeySize)
}

func TestAES256GCM_TruncatedCiphertext(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	_, err := DecryptAES256GCM(key, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDigest(t *testing.T) {
	body := []byte("hello")
	digest := Digest(body)
	assert.Len(t, digest, 32)
	assert.True(t, VerifyDigest(body, digest))

	decoded, err := hex.DecodeString(DigestHex(body))
	require.NoError(t, err)
	assert.Equal(t, digest, decoded)

	digest[3] ^= 0xff
	assert.False(t, VerifyDigest(body, digest))
}
