// Package fracindex generates lexicographically ordered string keys for cell
// ordering. Inserting between any two existing keys always yields a new key
// that sorts strictly between them, so cells never need renumbering and the
// key space cannot be exhausted by repeated insertion at the same spot
// (unlike float midpoints, which run out of mantissa).
//
// Keys are non-empty strings over '0'..'9','a'..'z' read as base-36 fraction
// digits. A well-formed key never ends in '0'.
package fracindex

import (
	"errors"
	"strings"
)

const digits = "0123456789abcdefghijklmnopqrstuvwxyz"

const base = len(digits)

var ErrOrder = errors.New("fracindex: left key must sort before right key")

// First returns the key used for the first cell of an empty notebook.
func First() string { return "i" }

// Between returns a key strictly between left and right. Empty left means
// "before everything", empty right means "after everything".
func Between(left, right string) (string, error) {
	if left != "" && right != "" && left >= right {
		return "", ErrOrder
	}
	var b strings.Builder
	for i := 0; ; i++ {
		l := digitAt(left, i)
		r := base
		if right != "" {
			r = digitAt(right, i)
		}
		switch {
		case l == r:
			b.WriteByte(digits[l])
		case r-l > 1:
			b.WriteByte(digits[(l+r)/2])
			return b.String(), nil
		default:
			// Adjacent digits: keep the left digit, then bisect the rest of
			// left against an open upper bound.
			b.WriteByte(digits[l])
			for j := i + 1; ; j++ {
				lj := digitAt(left, j)
				if base-lj > 1 {
					b.WriteByte(digits[(lj+base)/2])
					return b.String(), nil
				}
				b.WriteByte(digits[lj])
			}
		}
	}
}

// Before returns a key sorting before k, After one sorting after it.
func Before(k string) (string, error) { return Between("", k) }
func After(k string) (string, error)  { return Between(k, "") }

func digitAt(key string, i int) int {
	if i >= len(key) {
		return 0
	}
	return strings.IndexByte(digits, key[i])
}

// Valid reports whether k is a well-formed key: non-empty, known digits,
// no trailing zero.
func Valid(k string) bool {
	if k == "" || strings.HasSuffix(k, "0") {
		return false
	}
	for i := 0; i < len(k); i++ {
		if strings.IndexByte(digits, k[i]) < 0 {
			return false
		}
	}
	return true
}
