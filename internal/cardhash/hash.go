// Package cardhash derives a stable identity for card content, so that
// re-importing an unchanged card from a source does not create a duplicate.
package cardhash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Normalize joins the card's kind and fields, one per line, after cleaning
// each part: trimmed, lowercased and given Unix line endings.
func Normalize(c domain.Content) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return strings.TrimSpace(p)
	}

	switch v := c.(type) {
	case domain.TextContent:
		return strings.Join([]string{
			string(domain.KindText),
			normalizePart(v.Front),
			normalizePart(v.Back),
		}, "\n")
	case domain.CodeContent:
		// Code is case sensitive, so it is only trimmed.
		return strings.Join([]string{
			string(domain.KindCode),
			normalizePart(v.Question),
			normalizePart(v.ExpectedOutput),
			strings.TrimSpace(strings.ReplaceAll(v.Code, "\r\n", "\n")),
		}, "\n")
	}
	return ""
}

// Hash returns the SHA-256 of the normalized content as a hex string.
func Hash(c domain.Content) string {
	sum := sha256.Sum256([]byte(Normalize(c)))
	return fmt.Sprintf("%x", sum)
}
