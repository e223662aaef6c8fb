package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    RoomID
		wantErr bool
	}{
		{name: "upper", raw: "ABCD", want: "ABCD"},
		{name: "mixed case folds", raw: "AbC123", want: "ABC123"},
		{name: "lower case folds", raw: "abc123", want: "ABC123"},
		{name: "trimmed", raw: "  room1 ", want: "ROOM1"},
		{name: "max length", raw: strings.Repeat("a", MaxRoomIDLen), want: RoomID(strings.Repeat("A", MaxRoomIDLen))},
		{name: "too short", raw: "ab", wantErr: true},
		{name: "too long", raw: strings.Repeat("a", MaxRoomIDLen+1), wantErr: true},
		{name: "punctuation", raw: "abc-123", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRoomID(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseUserID(t *testing.T) {
	_, err := ParseUserID("alice")
	assert.NoError(t, err)

	_, err = ParseUserID("al")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ParseUserID(strings.Repeat("x", MaxUserIDLen+1))
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ParseUserID("bob smith")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestSanitizeDisplayName(t *testing.T) {
	assert.Equal(t, "alice", SanitizeDisplayName("", "alice"))
	assert.Equal(t, "alice", SanitizeDisplayName("   ", "alice"))
	assert.Equal(t, "scriptBob/script", SanitizeDisplayName("<script>Bob</script>", "bob"))

	long := strings.Repeat("é", MaxUsernameLen+10)
	got := SanitizeDisplayName(long, "bob")
	assert.Equal(t, MaxUsernameLen, len([]rune(got)))
}
