package xid

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

const tokenAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// ReadTokenLength is the length of the customer-facing bill token.
const ReadTokenLength = 12

// ReadToken returns an unguessable token for the customer bill page.
func ReadToken() (string, error) {
	buf := make([]byte, ReadTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}
