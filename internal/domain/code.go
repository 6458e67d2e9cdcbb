package domain

import "crypto/rand"

// SessionCodeLength is the fixed length of a join code.
const SessionCodeLength = 6

// Code alphabet omits easily confused characters (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ValidSessionCode reports whether code has the exact shape of a join code.
// It never touches the store, so malformed codes fail fast.
func ValidSessionCode(code string) bool {
	if len(code) != SessionCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// NewSessionCode generates a random join code.
func NewSessionCode() (string, error) {
	buf := make([]byte, SessionCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
