package bowl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := NewError(CodeInvalidCode, "abc", "too short")
	wrapped := fmt.Errorf("scan: %w", err)

	assert.True(t, errors.Is(wrapped, ErrInvalidCode))
	assert.False(t, errors.Is(wrapped, ErrEmptyInput))
	assert.Equal(t, CodeInvalidCode, CodeOf(wrapped))
}

func TestError_MessageIncludesSubjectAndCause(t *testing.T) {
	err := WrapError(CodeRemoteUnavailable, "push failed", errors.New("connection refused"))
	err.Subject = "doc"

	assert.Equal(t, "REMOTE_UNAVAILABLE: push failed (doc): connection refused", err.Error())
	assert.Equal(t, "connection refused", errors.Unwrap(err).Error())
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, SeveritySuccess, SeverityOf(nil))
	assert.Equal(t, SeverityWarning, SeverityOf(ErrRemoteUnavailable))
	assert.Equal(t, SeverityError, SeverityOf(ErrNotPrepared))
	assert.Equal(t, SeverityError, SeverityOf(errors.New("other")))
}
