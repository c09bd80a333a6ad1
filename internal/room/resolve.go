// Package room maps user supplied access codes to partition keys.
package room

import "strings"

// Resolve returns the partition key for an access code. Every character
// outside [A-Za-z0-9_-] is replaced with '_', so the key is safe to embed
// in a filename. Resolving an already canonical key returns it unchanged.
func Resolve(code string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, code)
}
