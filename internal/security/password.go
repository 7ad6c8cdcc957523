package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a parent password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. A malformed or empty
// hash never matches.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HashPIN hashes a child PIN. PINs are short, so they get the same cost as
// passwords and login attempts are rate limited.
func HashPIN(pin string) (string, error) {
	return HashPassword(pin)
}

// CheckPIN reports whether pin matches hash
func CheckPIN(hash, pin string) bool {
	return CheckPassword(hash, pin)
}
