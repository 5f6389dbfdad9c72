package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const codeSpace = 1_000_000

// DeliveryCode is a freshly issued code. Plain leaves the process exactly once, by notification.
type DeliveryCode struct {
	Plain string
	Hash  string
}

// GenerateCode draws a uniform 6-digit code in 000000-999999.
func GenerateCode() (DeliveryCode, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return DeliveryCode{}, fmt.Errorf("generate delivery code: %w", err)
	}
	plain := fmt.Sprintf("%06d", n.Int64())
	return DeliveryCode{Plain: plain, Hash: HashCode(plain)}, nil
}

// HashCode returns the hex-encoded SHA-256 of the code string.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func codeMatches(submitted, storedHash string) bool {
	got := HashCode(submitted)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
