package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const OtpLength = 6

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches the bcrypt hash. An empty
// hash never matches.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateOTP returns a uniformly random numeric code of OtpLength digits
func GenerateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < OtpLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", OtpLength, n.Int64()), nil
}

// HashOTP hashes a code for storage. Only the hash is persisted.
func HashOTP(code string) (string, error) {
	return HashPassword(code)
}

func CheckOTP(hash, code string) bool {
	return CheckPassword(hash, code)
}
