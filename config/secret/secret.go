// Package secret holds credentials handed out in resource connection descriptors,
// so they do not leak into logs or test output.
package secret

import (
	"crypto/rand"
	"encoding/hex"
)

type String string

const redacted = "REDACTED"

// Generate returns a random secret of 2n hex characters, suitable as a throwaway
// password for an ephemeral server.
func Generate(n int) (String, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return String(hex.EncodeToString(b)), nil
}

// String implements fmt.Stringer and redacts the sensitive value.
func (s String) String() string {
	return redacted
}

// GoString implements fmt.GoStringer and redacts the sensitive value.
func (s String) GoString() string {
	return redacted
}

// Raw returns the sensitive value as a string.
func (s String) Raw() string {
	return string(s)
}

func (s String) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
