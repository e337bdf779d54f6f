package idgen

import (
	"math/rand/v2"
	"strings"
	"time"
)

const (
	idAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

	// Join codes avoid 0/O/1/I to stay easy to read aloud.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// CodeLen is the length of a match join code.
	CodeLen = 6
)

func init() {
	if len(idAlphabet) != 32 || len(codeAlphabet) != 32 {
		panic("must not happen")
	}
	for i := 1; i < len(idAlphabet); i++ {
		if idAlphabet[i-1] >= idAlphabet[i] {
			panic("must not happen")
		}
	}
}

// ID generates a sortable unique identifier. It follows https://github.com/ulid/spec,
// but is lowercase and not monotonic.
func ID() string {
	var b strings.Builder
	ts := uint64(time.Now().UnixMilli()) & ((1 << 48) - 1)
	for i := 45; i >= 0; i -= 5 {
		_ = b.WriteByte(idAlphabet[(ts>>i)&31])
	}
	for range 2 {
		r := rand.Uint64()
		for range 8 {
			_ = b.WriteByte(idAlphabet[r&31])
			r >>= 5
		}
	}
	return b.String()
}

// JoinCode generates a short shareable code. Uniqueness is enforced by the
// store, callers must retry on collision.
func JoinCode() string {
	var b strings.Builder
	for range CodeLen {
		_ = b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// ValidJoinCode reports whether s could have been produced by JoinCode.
func ValidJoinCode(s string) bool {
	if len(s) != CodeLen {
		return false
	}
	for i := range len(s) {
		if !strings.ContainsRune(codeAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}
