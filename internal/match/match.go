// Package match provides the two comparison primitives every catalog lookup
// is built on: identifier equality and "clean" text equality.
//
// Clean text is what a player would consider the same name: case, accents,
// punctuation and runs of whitespace are ignored, so "  Tenser's  Floating
// Disk" and "tensers floating disk" compare equal.
//
// All functions are pure and safe for concurrent use.
package match

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// identityLen is the length of the canonical hyphenated identifier form
// (8-4-4-4-12 hex digits).
const identityLen = 36

// IsIdentity reports whether s is a syntactically valid identifier in the
// canonical hyphenated form. Braced, URN and unhyphenated variants that
// uuid.Parse would otherwise accept are rejected.
func IsIdentity(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != identityLen {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IdentityMatch reports whether a and b are both valid identifiers and equal
// ignoring case. Malformed input never matches and never errors.
func IdentityMatch(a, b string) bool {
	if !IsIdentity(a) || !IsIdentity(b) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// identityNamespace scopes derived identifiers to catalog content.
var identityNamespace = uuid.MustParse("5b0f3c1e-8a2d-4e6f-9b7c-2d4e6f8a0c13")

// DeriveIdentity returns a name-based (SHA-1, version 5) identifier in
// canonical form. Equal parts always yield the same identifier, so catalogs
// reloaded from unchanged files keep their identifiers.
func DeriveIdentity(parts ...string) string {
	return uuid.NewSHA1(identityNamespace, []byte(strings.Join(parts, "\x00"))).String()
}

// Normalize returns the clean form of s: diacritics stripped, lower-cased,
// punctuation and symbols removed, dashes treated as word breaks, and all
// whitespace collapsed to single spaces with no leading or trailing space.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// The chain carries state, so it is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || unicode.Is(unicode.Pd, r):
			pendingSpace = true
		}
	}
	return b.String()
}

// NormalizedMatch reports whether a and b have the same clean form. Blank
// strings never match anything, including each other.
func NormalizedMatch(a, b string) bool {
	na := Normalize(a)
	if na == "" {
		return false
	}
	return na == Normalize(b)
}

// Terms splits the clean form of s into its words.
func Terms(s string) []string {
	return strings.Fields(Normalize(s))
}
