// Package password implements the credential codec: bcrypt hashing and the
// portal password policy.
package password

import (
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Symbols accepted by the policy's symbol rule.
const Symbols = "!@#$%^&*()-_=+[]{};:'\",.<>/?`~\\|"

const minLength = 8

// Hash derives a bcrypt hash from the plaintext password.
func Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plain matches the stored hash. bcrypt performs the
// comparison in constant time.
func Verify(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Validate checks the password policy and returns every violated rule, not
// just the first.
func Validate(plain string) []string {
	var violations []string
	if len(plain) < minLength {
		violations = append(violations, "must be at least 8 characters long")
	}
	var upper, lower, digit, symbol bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		}
	}
	if !upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if !lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if !digit {
		violations = append(violations, "must contain a digit")
	}
	if !symbol {
		violations = append(violations, "must contain a symbol")
	}
	return violations
}

// ValidEmail reports whether addr is a plain RFC 5322 address without a
// display name.
func ValidEmail(addr string) bool {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return false
	}
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil {
		return false
	}
	return parsed.Address == trimmed
}
