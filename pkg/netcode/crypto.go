package netcode

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCryptoFailed is returned whenever an AEAD open fails, whatever the
// underlying cause (wrong key, corrupt ciphertext, truncated buffer, wrong
// associated data). The caller must never distinguish these cases in a
// response sent back to an unauthenticated peer.
var ErrCryptoFailed = errors.New("netcode: decryption failed")

// sessionAEAD returns the cipher used for per-connection packet sealing: a
// 12-byte-nonce AEAD, with the nonce derived from the strictly increasing
// per-connection sequence number rather than drawn from a CSPRNG, since a
// sequence number never repeats for the lifetime of a key.
func sessionAEAD(key Key) (cipher.AEAD, error) {
	return chacha20poly1305.New(key[:])
}

// tokenAEAD returns the cipher used for connect-token and challenge-token
// sealing: a 24-byte-nonce (XChaCha20-Poly1305) AEAD, matching the data
// model's 24-octet xnonce field, which a 12-byte-nonce construction cannot
// represent.
func tokenAEAD(key Key) (cipher.AEAD, error) {
	return chacha20poly1305.NewX(key[:])
}

// nonceFromSequence derives a deterministic nonce from a strictly increasing
// sequence number: size bytes, with the sequence little-endian in the last 8
// and the rest zero. It is safe to use across many seals under the same key,
// since sequence numbers never repeat.
func nonceFromSequence(seq uint64, size int) []byte {
	nonce := make([]byte, size)
	binary.LittleEndian.PutUint64(nonce[size-8:], seq)
	return nonce
}

// sealSession seals plaintext under key with a nonce derived from sequence,
// returning a new buffer holding the ciphertext followed by its MAC.
func sealSession(key Key, sequence uint64, aad, plaintext []byte) ([]byte, error) {
	aead, err := sessionAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := nonceFromSequence(sequence, aead.NonceSize())
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// openSession opens a session-sealed buffer produced by sealSession.
func openSession(key Key, sequence uint64, aad, ciphertext []byte) ([]byte, error) {
	aead, err := sessionAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := nonceFromSequence(sequence, aead.NonceSize())
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrCryptoFailed
	}
	return plaintext, nil
}

// sealToken seals plaintext under key using the given 24-byte nonce (either
// drawn from a CSPRNG for connect tokens, or derived from a sequence number
// for challenge tokens).
func sealToken(key Key, nonce [24]byte, aad, plaintext []byte) ([]byte, error) {
	aead, err := tokenAEAD(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

func openToken(key Key, nonce [24]byte, aad, ciphertext []byte) ([]byte, error) {
	aead, err := tokenAEAD(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrCryptoFailed
	}
	return plaintext, nil
}

// GenerateKey returns a fresh random key suitable for use as a challenge key
// or a connection send/receive key.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, err
	}
	return k, nil
}

// randomNonce24 draws a fresh random 24-byte nonce, used when sealing a
// connect token's private data (the only place this package needs
// unpredictable nonces; everything else derives nonces from sequence
// numbers it already controls).
func randomNonce24() ([24]byte, error) {
	var n [24]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, err
	}
	return n, nil
}
