// Package id generates canonical user identifiers.
//
// Identifiers are UUIDv7 bytes rendered as Crockford base32: 26 characters,
// lowercase, no padding. The leading bits carry the creation timestamp, so
// identifiers sort chronologically as plain strings while the random tail
// keeps partition keys from clustering on a hot prefix.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the size of an encoded identifier.
const Length = 26

// NewID generates a time-sortable canonical identifier.
func NewID() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuidv7: %w", err)
	}
	return Encode(u), nil
}

// Encode renders a UUID as a 26-character lowercase Crockford base32 string.
// Encoding is order-preserving: byte-wise ordering of UUIDs matches
// lexicographic ordering of their encoded forms.
func Encode(u uuid.UUID) string {
	var out [Length]byte

	// Two zero pad bits up front split the 128 bits into 26 even groups.
	acc := uint32(0)
	bits := 2
	i := 0
	for _, b := range u {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[i] = alphabet[(acc>>uint(bits))&31]
			i++
		}
	}
	return string(out[:])
}

// Valid reports whether s has the shape of an encoded identifier.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	// The first character encodes only 3 significant bits.
	if s[0] > '7' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !validChar(s[i]) {
			return false
		}
	}
	return true
}

func validChar(c byte) bool {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == c {
			return true
		}
	}
	return false
}
