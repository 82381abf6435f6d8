package configstore

import (
	"crypto/rand"
	"fmt"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxMintAttempts bounds how many candidate tokens are generated before
// giving up and reporting the token space as exhausted. At 32 characters
// drawn from a 62-character alphabet, a collision against any realistic
// store size is astronomically unlikely; the bound exists so a caller never
// blocks forever against a pathological store.
const maxMintAttempts = 8

// generateToken draws one random 32-character alphanumeric token.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, 32)
	for i, b := range buf {
		out[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(out), nil
}

// mintToken generates a token guaranteed not to be in use, or ErrExhausted
// after maxMintAttempts collisions.
func mintToken(inUse func(token string) bool) (string, error) {
	for i := 0; i < maxMintAttempts; i++ {
		candidate, err := generateToken()
		if err != nil {
			return "", err
		}
		if !inUse(candidate) {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}
