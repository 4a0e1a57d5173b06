// Package idgen generates prefixed public identifiers for engine entities,
// e.g. "conv_a1B2c3...", "item_...", "br_...", "run_...".
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	PrefixConversation = "conv"
	PrefixItem         = "item"
	PrefixBranch       = "br"
	PrefixRun          = "run"
	PrefixUsage        = "usage"

	// DefaultIDLength is the random suffix length for public ids.
	DefaultIDLength = 16
)

// GenerateSecureID returns "<prefix>_<random>" with a cryptographically
// random suffix of the given length.
func GenerateSecureID(prefix string, length int) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("prefix cannot be empty")
	}
	if length <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", length)
	}

	var sb strings.Builder
	sb.Grow(len(prefix) + 1 + length)
	sb.WriteString(prefix)
	sb.WriteByte('_')

	max := big.NewInt(int64(len(idAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate random id: %w", err)
		}
		sb.WriteByte(idAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// ConversationID returns a new conversation public id.
func ConversationID() (string, error) {
	return GenerateSecureID(PrefixConversation, DefaultIDLength)
}

// ItemID returns a new item public id.
func ItemID() (string, error) {
	return GenerateSecureID(PrefixItem, DefaultIDLength)
}

// BranchID returns a new branch public id.
func BranchID() (string, error) {
	return GenerateSecureID(PrefixBranch, DefaultIDLength)
}

// UsageID returns a new usage record public id.
func UsageID() (string, error) {
	return GenerateSecureID(PrefixUsage, DefaultIDLength)
}

// HasPrefix reports whether id carries the given entity prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}
