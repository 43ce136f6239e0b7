// Package auth implements the PIN fallback credential: a salted SHA-256
// digest stored per speaker and compared in constant time. Raw PINs are
// never persisted or logged; only the digest leaves this package.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

// saltLen is the number of random salt bytes prepended to the stored digest.
const saltLen = 16

// digestLen is the total stored blob size: salt followed by SHA-256(salt ∥ PIN).
const digestLen = saltLen + sha256.Size

// ErrInvalidPIN is returned when a PIN is not exactly four ASCII digits.
var ErrInvalidPIN = errors.New("auth: pin must be exactly 4 digits")

// ValidatePIN checks that pin is exactly four ASCII digits.
func ValidatePIN(pin string) error {
	if len(pin) != 4 {
		return ErrInvalidPIN
	}
	for i := range len(pin) {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

// HashPIN derives the storable digest for pin: a fresh random 16-byte salt
// followed by SHA-256(salt ∥ pin). Each call produces a different blob for
// the same PIN.
func HashPIN(pin string) ([]byte, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}
	blob := make([]byte, saltLen, digestLen)
	if _, err := rand.Read(blob); err != nil {
		return nil, fmt.Errorf("auth: read salt: %w", err)
	}
	h := sha256.New()
	h.Write(blob[:saltLen])
	h.Write([]byte(pin))
	return h.Sum(blob), nil
}

// VerifyPIN reports whether pin matches the stored digest blob. The
// comparison of the hash portion runs in constant time. A malformed blob
// never matches.
func VerifyPIN(digest []byte, pin string) bool {
	if len(digest) != digestLen {
		return false
	}
	if err := ValidatePIN(pin); err != nil {
		return false
	}
	h := sha256.New()
	h.Write(digest[:saltLen])
	h.Write([]byte(pin))
	want := h.Sum(nil)
	return subtle.ConstantTimeCompare(digest[saltLen:], want) == 1
}
