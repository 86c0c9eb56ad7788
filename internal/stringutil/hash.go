// Package stringutil collects small string/byte encoding helpers. Base58
// backs the build queue's per-element log file naming: a cache key's raw
// SHA-256 digest is already base16, but base58 gives a shorter path
// component with no visually ambiguous characters.
package stringutil

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

type base58Error struct {
	char rune
}

func (e *base58Error) Error() string {
	return fmt.Sprintf("invalid base58 character: %c", e.char)
}

var base58Index = func() map[rune]int64 {
	m := make(map[rune]int64, len(base58Alphabet))
	for i, c := range base58Alphabet {
		m[c] = int64(i)
	}
	return m
}()

// Base58Encode encodes raw bytes as base58, preserving leading zero bytes
// as leading '1' characters the way Bitcoin-style base58 does.
func Base58Encode(input []byte) string {
	if len(input) == 0 {
		return ""
	}

	zeros := 0
	for zeros < len(input) && input[zeros] == 0 {
		zeros++
	}

	num := new(big.Int).SetBytes(input)
	base := big.NewInt(58)
	mod := new(big.Int)

	var sb []byte
	for num.Sign() > 0 {
		num.DivMod(num, base, mod)
		sb = append(sb, base58Alphabet[mod.Int64()])
	}

	var out strings.Builder
	out.WriteString(strings.Repeat("1", zeros))
	for i := len(sb) - 1; i >= 0; i-- {
		out.WriteByte(sb[i])
	}
	return out.String()
}

// Base58Decode reverses Base58Encode, erroring on any character outside
// the base58 alphabet.
func Base58Decode(input string) ([]byte, error) {
	if input == "" {
		return []byte{}, nil
	}

	zeros := 0
	for zeros < len(input) && input[zeros] == '1' {
		zeros++
	}

	num := new(big.Int)
	base := big.NewInt(58)
	for _, c := range input {
		idx, ok := base58Index[c]
		if !ok {
			return nil, &base58Error{char: c}
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(idx))
	}

	decoded := num.Bytes()
	out := make([]byte, zeros+len(decoded))
	copy(out[zeros:], decoded)
	return out, nil
}

// Base58EncodeSHA256 hashes s with SHA-256 and base58-encodes the digest —
// used to derive a deterministic, filesystem-safe short name from an
// arbitrary identifying string (e.g. an element's cache key, whose digest
// suffixes that element's build-log file name).
func Base58EncodeSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return Base58Encode(sum[:])
}
