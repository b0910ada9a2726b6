// Package code turns raw scanner input into canonical bowl codes.
//
// Rules are applied in order:
//  1. blank input is rejected with EMPTY_INPUT
//  2. an embedded http(s) URL becomes the code
//  3. a vendor token marker (vyt.to/, vytal) accepts the whole input
//  4. any input of MinLength..MaxLength characters is accepted as-is
//  5. everything else is rejected with INVALID_CODE
//
// Codes are compared byte-for-byte. Nothing beyond trimming is normalized.
package code

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/roach88/bowltrack/internal/bowl"
)

const (
	// MinLength is the shortest bare token accepted.
	MinLength = 6
	// MaxLength is the longest bare token accepted.
	MaxLength = 120
)

var (
	urlPattern    = regexp.MustCompile(`(?i)https?://\S+`)
	vendorPattern = regexp.MustCompile(`(?i)vyt\.to/\S+|vytal\S+`)
)

// Validator validates scanner input. The zero value uses MinLength and
// MaxLength.
type Validator struct {
	MinLength int
	MaxLength int
}

// Validate applies the package rules with default bounds.
func Validate(raw string) (string, error) {
	return Validator{}.Validate(raw)
}

// Validate returns the canonical code for raw, or a *bowl.Error with code
// EMPTY_INPUT or INVALID_CODE.
func (v Validator) Validate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", bowl.NewError(bowl.CodeEmptyInput, "", "scan input is empty")
	}

	if u := urlPattern.FindString(s); u != "" {
		return u, nil
	}
	if vendorPattern.MatchString(s) {
		return s, nil
	}

	n := utf8.RuneCountInString(s)
	if n >= v.min() && n <= v.max() {
		return s, nil
	}
	return "", bowl.NewError(bowl.CodeInvalidCode, s, "length %d outside [%d,%d]", n, v.min(), v.max())
}

func (v Validator) min() int {
	if v.MinLength > 0 {
		return v.MinLength
	}
	return MinLength
}

func (v Validator) max() int {
	if v.MaxLength > 0 {
		return v.MaxLength
	}
	return MaxLength
}
