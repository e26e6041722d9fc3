// Package cardhash derives a stable identity for flashcard content, so an
// imported card keeps its schedule across re-syncs while its text is unchanged.
package cardhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/brainstormbuddy/studybuddy/internal/domain"
)

// Normalize lowercases, trims and unifies line endings of each card field,
// then joins them with newlines so adjacent fields cannot run together.
func Normalize(card domain.Card) string {
	parts := []string{card.Front, card.Back, card.Context}
	for i, p := range parts {
		p = strings.ReplaceAll(p, "\r\n", "\n")
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "\n")
}

// Hash returns the hex SHA-256 of the normalized card.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}
