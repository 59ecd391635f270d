// Package names normalizes and validates the account and domain names the
// backend deals in. Account names double as DNS domains, so everything is
// punycoded and compared in lowercase ASCII form.
package names

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.?$`)

// Normalize lowercases a name and strips any trailing dot.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}

// ToASCII converts a possibly-Unicode name to its punycode form, normalized.
// Returns "" when the name cannot be encoded.
func ToASCII(name string) string {
	ascii, err := idna.Lookup.ToASCII(Normalize(name))
	if err != nil {
		return ""
	}
	return ascii
}

// ToUnicode converts a punycoded name back to its Unicode form. Returns the
// input unchanged when decoding fails.
func ToUnicode(name string) string {
	uni, err := idna.Lookup.ToUnicode(Normalize(name))
	if err != nil {
		return Normalize(name)
	}
	return uni
}

// IsValidAccount reports whether a name can serve as an account: a valid
// DNS name of one or more LDH labels, at most 253 octets once punycoded.
func IsValidAccount(name string) bool {
	ascii := ToASCII(name)
	if ascii == "" || len(ascii) > 253 {
		return false
	}
	for _, label := range strings.Split(ascii, ".") {
		if !labelRe.MatchString(label) {
			return false
		}
	}
	return true
}

// IsValidEmail is a shape check only; deliverability is someone else's job.
func IsValidEmail(email string) bool {
	if !emailRe.MatchString(email) {
		return false
	}
	parts := strings.Split(email, "@")
	return len(parts) == 2 && IsValidAccount(parts[1])
}

// SplitEmail returns the local part and the normalized domain of an address.
func SplitEmail(email string) (string, string) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email, ""
	}
	return email[:at], Normalize(email[at+1:])
}
