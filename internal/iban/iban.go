// Package iban implements the structural IBAN check used at order
// creation: country length, charset and the ISO 7064 mod-97 checksum.
// It does not verify that the account exists.
package iban

import (
	"errors"
	"strings"
)

var ErrInvalidIBAN = errors.New("invalid iban")

// Registry lengths for countries we expect to pay out to. Unknown country
// codes fall back to the generic 15..34 bound.
var countryLengths = map[string]int{
	"AT": 20, "BE": 16, "CH": 21, "CY": 28, "CZ": 24, "DE": 22,
	"DK": 18, "EE": 20, "ES": 24, "FI": 18, "FR": 27, "GB": 22,
	"GR": 27, "HR": 21, "HU": 28, "IE": 22, "IT": 27, "LT": 20,
	"LU": 20, "LV": 21, "MT": 31, "NL": 18, "PL": 28, "PT": 25,
	"RO": 24, "SE": 24, "SI": 19, "SK": 24,
}

// Normalize strips spaces and upper-cases the input.
func Normalize(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(raw, " ", ""))
}

// Validate performs the structural check on a normalized or raw IBAN.
func Validate(raw string) error {
	iban := Normalize(raw)
	if len(iban) < 15 || len(iban) > 34 {
		return ErrInvalidIBAN
	}
	for i, r := range iban {
		switch {
		case r >= 'A' && r <= 'Z':
			if i == 2 || i == 3 {
				return ErrInvalidIBAN
			}
		case r >= '0' && r <= '9':
			if i == 0 || i == 1 {
				return ErrInvalidIBAN
			}
		default:
			return ErrInvalidIBAN
		}
	}
	if want, ok := countryLengths[iban[:2]]; ok && len(iban) != want {
		return ErrInvalidIBAN
	}
	if mod97(iban[4:]+iban[:4]) != 1 {
		return ErrInvalidIBAN
	}
	return nil
}

// mod97 computes the ISO 7064 remainder, mapping A..Z to 10..35 and
// reducing incrementally to stay within int range.
func mod97(s string) int {
	rem := 0
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			v := int(r-'A') + 10
			rem = (rem*100 + v) % 97
		} else {
			rem = (rem*10 + int(r-'0')) % 97
		}
	}
	return rem
}
