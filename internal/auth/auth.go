package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor used for stored password hashes.
const PasswordCost = 12

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// tokenBytes is the amount of randomness in a session token (256 bits).
const tokenBytes = 32

// dummyHash is compared against when a login names an unknown user, so a
// miss costs the same as a wrong password.
var (
	dummyHash     []byte
	dummyHashOnce sync.Once
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// BurnPasswordCheck performs a comparison that always fails.
func BurnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), PasswordCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// GenerateSessionToken returns a URL-safe random session identifier.
func GenerateSessionToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidSessionToken reports whether token has the shape GenerateSessionToken
// produces. Anything else is rejected before touching the store.
func ValidSessionToken(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(tokenBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}

// ErrEmptyPassword is returned when a blank password reaches the hasher.
var ErrEmptyPassword = errors.New("password cannot be empty")
