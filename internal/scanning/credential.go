package scanning

import (
	"fmt"
	"strings"
)

// credentialPrefix starts every Google AI Studio API key.
const credentialPrefix = "AIza"

// ValidateCredential checks that key is present and shaped like a Gemini key.
func ValidateCredential(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingCredential
	}
	if !strings.HasPrefix(key, credentialPrefix) || strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("%w: expected a key starting with %q, got %s", ErrMalformedCredential, credentialPrefix, MaskCredential(key))
	}
	return nil
}

// MaskCredential keeps the first and last four characters of key so a user
// can tell which key was used without exposing it.
func MaskCredential(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "…" + key[len(key)-4:]
}
