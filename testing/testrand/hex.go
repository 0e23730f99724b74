// Package testrand produces insecure random identifiers for naming test resources.
package testrand

import (
	"encoding/hex"
	"math/rand/v2"
	"strings"
)

// Hex produces an insecure random number hex encoded to a string of n characters.
// If n is odd the resultant string won't be valid hex, but will still only contain
// characters that can appear in a hex encoding.
func Hex(n int) string {
	b := make([]byte, n/2+1)
	for i := range b {
		//#nosec:G404 // this is just for test IDs
		b[i] = byte(rand.IntN(256))
	}
	return hex.EncodeToString(b)[:n]
}

// Name returns prefix joined to a short random suffix, lower cased and with
// anything other than letters, digits and dashes replaced, so it is usable as a
// directory, bucket, vhost or database name.
func Name(prefix string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, prefix)
	s := clean + "-" + Hex(6)
	if len(s) > 63 {
		s = s[len(s)-63:]
	}
	return strings.TrimLeft(s, "-")
}
