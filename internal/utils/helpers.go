// Package utils provides utility functions used throughout the engine.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math"
	"time"
)

// GenerateRandomBytes generates n random bytes.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateRandomHex generates a random hex string of length n.
func GenerateRandomHex(n int) (string, error) {
	b, err := GenerateRandomBytes((n + 1) / 2)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:n], nil
}

// Retry executes fn with retries and exponential backoff starting at sleep.
// Used by the ESS client's Transient error handling: one internal retry
// with a short backoff before surfacing the failure.
func Retry(attempts int, sleep time.Duration, fn func() error) error {
	var err error
	for i := range attempts {
		err = fn()
		if err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(sleep * time.Duration(math.Pow(2, float64(i))))
		}
	}
	return err
}
