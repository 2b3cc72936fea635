package history

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BaSui01/companion/types"
)

const maxComponentLen = 255

// SanitizePathComponent validates an identifier that becomes part of a
// storage path. It never rewrites its input: a valid component is returned
// unchanged, anything else is rejected with INVALID_IDENTIFIER.
func SanitizePathComponent(s string) (string, error) {
	if s == "" {
		return "", invalid(s, "empty")
	}
	if s == "." || s == ".." {
		return "", invalid(s, "relative path element")
	}
	if len(s) > maxComponentLen {
		return "", invalid(s, "too long")
	}
	if !utf8.ValidString(s) {
		return "", invalid(s, "not valid utf-8")
	}
	if strings.ContainsAny(s, `/\`) {
		return "", invalid(s, "path separator")
	}
	for _, r := range s {
		switch {
		case r == 0:
			return "", invalid(s, "NUL byte")
		case r >= 0x20 && r <= 0x7E:
		case r >= 0xA0 && r <= 0xFFFF:
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		default:
			return "", invalid(s, fmt.Sprintf("disallowed character %U", r))
		}
	}
	return s, nil
}

func invalid(s, reason string) *types.Error {
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return types.Errorf(types.ErrInvalidIdentifier, "invalid identifier %q: %s", s, reason)
}

// sanitizePair validates a configuration id and a history id together.
func sanitizePair(confUID, historyUID string) error {
	if _, err := SanitizePathComponent(confUID); err != nil {
		return err
	}
	_, err := SanitizePathComponent(historyUID)
	return err
}
