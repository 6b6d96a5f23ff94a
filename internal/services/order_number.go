package services

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

const (
	orderNumberPrefix   = "ORD-"
	orderNumberLength   = 8
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-[A-Z0-9]{8}$`)

// NewOrderNumber returns ORD- followed by eight random uppercase alphanumerics.
// Uniqueness is enforced by the repository, not here.
func NewOrderNumber() (string, error) {
	// 252 is the largest multiple of 36 below 256; higher bytes are rejected to avoid bias.
	const limit = 252
	out := make([]byte, 0, orderNumberLength)
	buf := make([]byte, orderNumberLength*2)
	for len(out) < orderNumberLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("order number: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, orderNumberAlphabet[int(b)%len(orderNumberAlphabet)])
			if len(out) == orderNumberLength {
				break
			}
		}
	}
	return orderNumberPrefix + string(out), nil
}

// IsOrderNumber reports whether value has the ORD-XXXXXXXX shape.
func IsOrderNumber(value string) bool {
	return orderNumberPattern.MatchString(value)
}
