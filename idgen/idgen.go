// Package idgen produces the identifiers used across pinup. Comments get
// UUIDv7 ids, which sort by creation time; request traces get short
// base-36 ids.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NanoID returns a Generator of base-36 ids of the given length. Bytes
// outside the largest multiple of 36 are redrawn so every symbol is
// equally likely.
func NanoID(length int) Generator {
	const limit = 256 - 256%len(base36)
	return func() string {
		out := make([]byte, 0, length)
		buf := make([]byte, length+length/4+1)
		for len(out) < length {
			rand.Read(buf)
			for _, b := range buf {
				if int(b) >= limit {
					continue
				}
				out = append(out, base36[int(b)%len(base36)])
				if len(out) == length {
					break
				}
			}
		}
		return string(out)
	}
}

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs.
func UUIDv7() Generator {
	return func() string { return uuid.Must(uuid.NewV7()).String() }
}

// Default generates ids for stored records.
var Default Generator = UUIDv7()
