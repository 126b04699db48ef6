package ledger

import (
	"strings"
	"unicode"
)

const (
	identityLength = 10
	maxProvince    = 24
	minNameLength  = 5
	minNameWords   = 2
)

var identityCoefficients = [9]int{2, 1, 2, 1, 2, 1, 2, 1, 2}

// ValidateIdentity checks a national identity number (cedula): ten digits,
// a province code in [1,24] and a modulo-10 check digit.
func ValidateIdentity(value string) error {
	if len(value) != identityLength {
		return &InvalidIdentityError{Value: value, Reason: "must have exactly 10 digits"}
	}
	digits := make([]int, identityLength)
	for i, r := range value {
		if r < '0' || r > '9' {
			return &InvalidIdentityError{Value: value, Reason: "must contain only digits"}
		}
		digits[i] = int(r - '0')
	}

	province := digits[0]*10 + digits[1]
	if province < 1 || province > maxProvince {
		return &InvalidIdentityError{Value: value, Reason: "province code out of range"}
	}

	sum := 0
	for i, c := range identityCoefficients {
		p := digits[i] * c
		if p >= 10 {
			p -= 9
		}
		sum += p
	}
	check := 0
	if sum%10 != 0 {
		check = 10 - sum%10
	}
	if check != digits[9] {
		return &InvalidIdentityError{Value: value, Reason: "check digit mismatch"}
	}
	return nil
}

// normalizeName collapses runs of whitespace to single spaces.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// ValidateName requires at least five characters and two words.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len([]rune(trimmed)) < minNameLength {
		return &InvalidNameError{Value: name, Reason: "must have at least 5 characters"}
	}
	if len(strings.FieldsFunc(trimmed, unicode.IsSpace)) < minNameWords {
		return &InvalidNameError{Value: name, Reason: "must contain first and last name"}
	}
	return nil
}
