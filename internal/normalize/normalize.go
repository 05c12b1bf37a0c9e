// Package normalize canonicalizes identity field values before comparison
// or storage. Every lookup against an encrypted field must apply the same
// normalization that was applied at write time.
package normalize

import "strings"

// Email returns the canonical form of an e-mail address: trimmed and
// lowercased.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CPF strips every non-digit character from a Brazilian CPF number.
func CPF(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CPFLength is the number of digits a normalized CPF must contain.
const CPFLength = 11

// ValidCPF reports whether a normalized CPF has the expected digit count.
func ValidCPF(s string) bool {
	return len(s) == CPFLength
}
