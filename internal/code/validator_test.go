package code

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bowltrack/internal/bowl"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain url", "https://vyt.to/abc123", "https://vyt.to/abc123"},
		{"url trimmed", "  https://vyt.to/abc123\n", "https://vyt.to/abc123"},
		{"url embedded in noise", "scan: https://vyt.to/abc123 ok", "https://vyt.to/abc123"},
		{"url scheme uppercase", "HTTPS://VYT.TO/ABC", "HTTPS://VYT.TO/ABC"},
		{"http url", "http://example.com/x", "http://example.com/x"},
		{"vendor marker", "VYT.TO/abc", "VYT.TO/abc"},
		{"vytal token", "vytal-12", "vytal-12"},
		{"vendor marker keeps whole input", "x vyt.to/1", "x vyt.to/1"},
		{"bare token min length", "abcdef", "abcdef"},
		{"bare token case preserved", "AbC123xyz", "AbC123xyz"},
		{"bare token max length", strings.Repeat("a", 120), strings.Repeat("a", 120)},
		{"multibyte counted by character", "äöüäöü", "äöüäöü"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code bowl.ErrorCode
	}{
		{"empty", "", bowl.CodeEmptyInput},
		{"whitespace", " \t\n ", bowl.CodeEmptyInput},
		{"too short", "abc12", bowl.CodeInvalidCode},
		{"too long", strings.Repeat("a", 121), bowl.CodeInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.raw)
			require.Error(t, err)
			assert.Empty(t, got)
			assert.Equal(t, tt.code, bowl.CodeOf(err))
		})
	}
}

func TestValidator_CustomBounds(t *testing.T) {
	v := Validator{MinLength: 3, MaxLength: 4}

	got, err := v.Validate("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = v.Validate("abcde")
	assert.ErrorIs(t, err, bowl.ErrInvalidCode)
}
