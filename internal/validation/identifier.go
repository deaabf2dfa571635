package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxIdentifierLength is the longest identifier accepted.
const MaxIdentifierLength = 256

// IdentifierValidator validates the names a search looks for.
type IdentifierValidator struct {
	MaxLength int
}

func NewIdentifierValidator() *IdentifierValidator {
	return &IdentifierValidator{MaxLength: MaxIdentifierLength}
}

// ValidateAndNormalize trims input and checks that it is a single identifier.
// A qualified name such as "pkg.Name" is reduced to its last element.
func (v *IdentifierValidator) ValidateAndNormalize(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("identifier cannot be empty")
	}
	if len(input) > v.MaxLength {
		return "", fmt.Errorf("identifier too long (max %d characters)", v.MaxLength)
	}
	if i := strings.LastIndexByte(input, '.'); i >= 0 {
		input = input[i+1:]
		if input == "" {
			return "", fmt.Errorf("qualified name has no final element")
		}
	}

	for i, r := range input {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case unicode.IsDigit(r):
			if i == 0 {
				return "", fmt.Errorf("identifier cannot start with a digit: %q", input)
			}
		default:
			return "", fmt.Errorf("identifier contains invalid character %q", r)
		}
	}
	return input, nil
}
