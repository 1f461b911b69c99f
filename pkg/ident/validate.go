// Package ident validates the opaque identifiers tlw passes to the ledger:
// owner identities (public keys) and lock account identifiers.
package ident

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/timelock-wallet/tlw/pkg/errclass"
)

const maxLen = 128

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// Identity normalizes and validates an owner identity.
func Identity(s string) (string, error) {
	return clean("identity", s)
}

// LockID normalizes and validates a lock identifier.
func LockID(s string) (string, error) {
	return clean("lock id", s)
}

func clean(what, s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", errclass.ErrIdentityInvalid.WithMessagef("%s must not be empty", what)
	}
	if len(s) > maxLen {
		return "", errclass.ErrIdentityInvalid.WithMessagef("%s longer than %d bytes", what, maxLen)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", errclass.ErrIdentityInvalid.WithMessagef("%s must not contain control characters: %q", what, s)
		}
	}
	if !idRegex.MatchString(s) {
		return "", errclass.ErrIdentityInvalid.WithMessagef("%s must match [a-zA-Z0-9._:-]+: %s", what, s)
	}
	return s, nil
}
