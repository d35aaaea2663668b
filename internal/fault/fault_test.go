package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := &Error{Kind: Conflict, Op: "start", Detail: "already running"}
	wrapped := fmt.Errorf("dispatch: %w", base)

	assert.Equal(t, Conflict, KindOf(base))
	assert.Equal(t, Conflict, KindOf(wrapped))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
	assert.True(t, Is(wrapped, Conflict))
	assert.False(t, Is(nil, Conflict))
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: RemoteError, Op: "status", Target: "abc-123", Status: 500, Detail: "boom"}
	assert.Equal(t, "status: remote_error (abc-123) [HTTP 500]: boom", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(PersistenceError, "persist", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "disk full", err.Detail)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"long", "abcdef", 5, "abcde"},
		{"multibyte", "ééééé", 3, "ééé"},
		{"zero", "abc", 0, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Truncate(tc.in, tc.n))
		})
	}
}

func TestNewCapsDetail(t *testing.T) {
	err := New(RemoteError, "status", strings.Repeat("x", MaxDetail+100))
	assert.Len(t, err.Detail, MaxDetail)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "not_configured", NotConfigured.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
