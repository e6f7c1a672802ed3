package internal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	sessionIDSize   = 32
	emailCodeSize   = 4
	maxRandomDigits = 10
)

// NewSessionID returns a base64url session identifier with 256 bits of entropy.
func NewSessionID() (string, error) {
	var raw [sessionIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewHexSecret returns size random bytes hex encoded.
func NewHexSecret(size int) (string, error) {
	if size <= 0 {
		return "", errors.New("invalid secret size")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// NewEmailVerificationCode returns a short lowercase hex code meant to be
// typed by a human from an email.
func NewEmailVerificationCode() (string, error) {
	return NewHexSecret(emailCodeSize)
}

// NewResetToken returns a random UUIDv4 string.
func NewResetToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RandomDigits returns n uniformly random decimal digits.
func RandomDigits(n int) (string, error) {
	if n < 1 || n > maxRandomDigits {
		return "", errors.New("invalid digit count")
	}

	var b strings.Builder
	b.Grow(n)

	max := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
