package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotContains(t, hash, "correct horse battery staple")

	ok, err := VerifyPassword(hash, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "wrong password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordUsesFreshSaltPerCall(t *testing.T) {
	h1, err := HashPassword("same-password")
	require.NoError(t, err)
	h2, err := HashPassword("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestPasswordPolicyEnumeratesAllViolations(t *testing.T) {
	policy := DefaultPasswordPolicy()
	err := policy.Validate("short")
	require.Error(t, err)

	violation, ok := err.(*PolicyViolation)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violation.Violations), 2) // too short AND missing classes
}

func TestPasswordPolicyAcceptsCompliantPassword(t *testing.T) {
	policy := DefaultPasswordPolicy()
	err := policy.Validate("Str0ngPassw0rd")
	assert.NoError(t, err)
}
