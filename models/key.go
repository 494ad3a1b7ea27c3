package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NaturalKey matches a local customer against a remote one when their
// identifiers differ. Both fields are normalised with Normalize.
type NaturalKey struct {
	Name  string
	Email string
}

func KeyFor(name, email string) NaturalKey {
	return NaturalKey{Name: Normalize(name), Email: Normalize(email)}
}

// Normalize trims surrounding space, composes the string to NFC and case-folds it.
func Normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
