package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	claims := Claims{UserID: "u1", OrganizationID: "o1", Role: RoleAnalyst, Permissions: []string{PermPayrollClose}}

	token, err := GenerateToken(secret, claims, time.Hour)
	require.NoError(t, err)

	parsed, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", parsed.UserID)
	assert.Equal(t, "o1", parsed.OrganizationID)
	assert.Equal(t, RoleAnalyst, parsed.Role)
	assert.Equal(t, "u1", parsed.Subject)

	user := parsed.User()
	assert.True(t, user.Can(PermPayrollRun))
	assert.True(t, user.Can(PermPayrollClose), "explicit grant")
	assert.False(t, user.Can(PermPayrollReopen))
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateToken("right", Claims{UserID: "u1", OrganizationID: "o1"}, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken("wrong", token)
	assert.Error(t, err)

	expired, err := GenerateToken("right", Claims{UserID: "u1", OrganizationID: "o1"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("right", expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseTokenRequiresOrganization(t *testing.T) {
	token, err := GenerateToken("s", Claims{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken("s", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRolePermissionsSubset(t *testing.T) {
	allowed := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		allowed[perm] = struct{}{}
	}
	for role, perms := range RolePermissions {
		require.NotEmpty(t, perms, "role %s has no permissions", role)
		for _, perm := range perms {
			_, ok := allowed[perm]
			assert.True(t, ok, "role %s has unknown permission %s", role, perm)
		}
	}
}

func TestOnlyControllersReopen(t *testing.T) {
	assert.True(t, Allowed(RoleController, nil, PermPayrollReopen))
	assert.False(t, Allowed(RoleAnalyst, nil, PermPayrollReopen))
	assert.False(t, Allowed(RoleViewer, nil, PermPayrollRun))
	assert.False(t, Allowed("", nil, PermPayrollRead))
}
