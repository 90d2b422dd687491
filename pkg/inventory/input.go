package inventory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxQuantity keeps parsed values exactly representable as float64 so that
// "5e3"-style input round-trips.
const maxQuantity = 1 << 53

// NormalizeName turns user input into a record key: surrounding space is
// trimmed and the first character upper-cased. The rest is left untouched,
// so "apple" and "aPPLE" map to "Apple" and "APPLE".
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: item name is empty", ErrValidation)
	}
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError && size <= 1 {
		return "", fmt.Errorf("%w: item name is not valid UTF-8", ErrValidation)
	}
	return string(unicode.ToUpper(r)) + name[size:], nil
}

// ParseQuantity coerces form input into a quantity. Integral decimal and
// float notations are accepted ("5", "5.0", "5e1"); empty, non-numeric,
// fractional and negative input is rejected.
func ParseQuantity(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: quantity is empty", ErrValidation)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if err := ValidateQuantity(n); err != nil {
			return 0, err
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: quantity %q is not a number", ErrValidation, raw)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: quantity %q is not a whole number", ErrValidation, raw)
	}
	if f > maxQuantity {
		return 0, fmt.Errorf("%w: quantity %q is too large", ErrValidation, raw)
	}
	n := int(f)
	if err := ValidateQuantity(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ValidateQuantity rejects negative and out of range quantities.
func ValidateQuantity(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: quantity %d is negative", ErrValidation, n)
	}
	if int64(n) > maxQuantity {
		return fmt.Errorf("%w: quantity %d is too large", ErrValidation, n)
	}
	return nil
}
