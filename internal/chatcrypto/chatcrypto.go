// Package chatcrypto implements the message sealing used by private threads
// and token-gated listing chat. Thread keys are derived deterministically
// from the participants' pseudonymous identities, so both sides compute the
// identical key locally and the server never stores a secret for private
// threads.
package chatcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"
)

const KeySize = 32

var hkdfSalt = []byte("peermart-thread")

// ErrDecrypt is returned when a ciphertext cannot be opened with the given
// key. Callers render an undecryptable placeholder instead of failing the
// whole read.
var ErrDecrypt = errors.New("chatcrypto: cannot decrypt message")

// ThreadKey derives the symmetric key for a private thread from the two
// participant identities and the thread id. The identities are sorted before
// derivation so both sides produce the same key regardless of argument
// order.
func ThreadKey(idA, idB string, threadID uint64) ([]byte, error) {
	if idA == "" || idB == "" {
		return nil, errors.New("chatcrypto: empty participant identity")
	}
	pair := []string{idA, idB}
	sort.Strings(pair)
	secret := []byte(pair[0] + "|" + pair[1])
	info := []byte(fmt.Sprintf("thread-%d", threadID))

	reader := hkdf.New(sha256.New, secret, hkdfSalt, info)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive thread key: %w", err)
	}
	return key, nil
}

// ListingKey generates a fresh random key for a token-gated listing chat.
// It is created once per listing and handed out only to eligible callers.
func ListingKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate listing key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with AES-256-GCM under a fresh random nonce and
// returns the ciphertext and nonce separately, matching the stored layout.
func Seal(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts a stored ciphertext. A wrong key, corrupted record or bad
// nonce yields ErrDecrypt, never a panic.
func Open(key, ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrDecrypt
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("chatcrypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
