package credentials

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  bool
	}{
		{"user@example.com", true},
		{"a@b.c", true},
		{"first.last@sub.domain.kz", true},
		{"порт@каспий.рф", true},
		{"", false},
		{"plain", false},
		{"no-at.example.com", false},
		{"user@localhost", false},
		{"user@example.", false},
		{"@example.com", false},
		{"user@.com", false},
		{"us er@example.com", false},
		{"user@exa mple.com", false},
		{"user@@example.com", false},
		{"user@example.com ", false},
	}

	for _, tc := range cases {
		require.Equalf(t, tc.want, ValidateEmail(tc.input), "ValidateEmail(%q)", tc.input)
	}
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	require.False(t, ValidatePassword("abc", LoginMinPasswordLength))
	require.True(t, ValidatePassword("abcd", LoginMinPasswordLength))
	require.False(t, ValidatePassword("abcde", RegisterMinPasswordLength))
	require.True(t, ValidatePassword("abcdef", RegisterMinPasswordLength))
	require.True(t, ValidatePassword("", 0))
	// Characters are counted, not bytes.
	require.False(t, ValidatePassword("пар", LoginMinPasswordLength))
	require.True(t, ValidatePassword("пароль", RegisterMinPasswordLength))
	// Astral-plane symbols count once each.
	require.False(t, ValidatePassword("🔒🔑", LoginMinPasswordLength))
	require.True(t, ValidatePassword("🔒🔑🔒🔑", LoginMinPasswordLength))
}

func TestPasswordsMatch(t *testing.T) {
	t.Parallel()

	require.True(t, PasswordsMatch("abcdef", "abcdef"))
	require.False(t, PasswordsMatch("abcdef", "abcdefx"))
	require.False(t, PasswordsMatch("abcdef", "ABCDEF"))
	require.True(t, PasswordsMatch("", ""))
}
