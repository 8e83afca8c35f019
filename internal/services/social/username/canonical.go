// Package username canonicalizes social-graph handles.
package username

import (
	"fmt"
	"regexp"
	"strings"
)

// Farcaster fnames are lowercase; ENS-style names may carry dots.
var canonicalPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,62}$`)

// Canonicalize trims a leading "@", lowercases ASCII and validates the
// handle.
func Canonicalize(input string) (string, error) {
	input = strings.TrimPrefix(strings.TrimSpace(input), "@")
	if input == "" {
		return "", fmt.Errorf("username is required")
	}

	var builder strings.Builder
	builder.Grow(len(input))
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if ch > 0x7f {
			return "", fmt.Errorf("username must be ASCII")
		}
		if ch >= 'A' && ch <= 'Z' {
			ch = ch - 'A' + 'a'
		}
		builder.WriteByte(ch)
	}

	canonical := builder.String()
	if !canonicalPattern.MatchString(canonical) {
		return "", fmt.Errorf("username does not match required format")
	}
	return canonical, nil
}
