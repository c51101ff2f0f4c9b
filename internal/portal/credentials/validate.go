package credentials

import (
	"regexp"
	"unicode/utf8"
)

const (
	// LoginMinPasswordLength is the shortest password accepted by the login form.
	LoginMinPasswordLength = 4
	// RegisterMinPasswordLength is the shortest password accepted by registration.
	// It intentionally differs from the login threshold.
	RegisterMinPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail reports whether s has the shape local@domain.tld. Only the format
// is checked; deliverability is not.
func ValidateEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidatePassword reports whether s has at least minLength characters.
func ValidatePassword(s string, minLength int) bool {
	// Code points, not UTF-16 units: "🔒🔑" is 2 here where a browser counts 4.
	return utf8.RuneCountInString(s) >= minLength
}

// PasswordsMatch reports whether the password and its confirmation are identical.
func PasswordsMatch(a, b string) bool {
	return a == b
}
