package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-chars-long", time.Hour, 15*time.Minute)

	token, err := mgr.GenerateToken(RealmService, "bot")
	require.NoError(t, err)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, RealmService, claims.Realm)
	assert.Equal(t, "bot", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateTokenForRealm(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-chars-long", time.Hour, 15*time.Minute)

	svc, err := mgr.GenerateToken(RealmService, "bot")
	require.NoError(t, err)
	adm, err := mgr.GenerateToken(RealmAdmin, "ops")
	require.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(svc, RealmService)
	assert.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(svc, RealmAdmin)
	assert.Error(t, err)

	// admin tokens are accepted on service routes
	_, err = mgr.ValidateTokenForRealm(adm, RealmService)
	assert.NoError(t, err)

	_, err = mgr.ValidateTokenForRealm(adm, RealmAdmin)
	assert.NoError(t, err)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-chars-long", time.Hour, 15*time.Minute)
	other := NewJWTManager("another-secret-also-32-chars-long!", time.Hour, 15*time.Minute)

	token, err := mgr.GenerateToken(RealmAdmin, "ops")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-chars-long", -time.Minute, -time.Minute)

	token, err := mgr.GenerateToken(RealmService, "bot")
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestGenerateTokenUnknownRealm(t *testing.T) {
	mgr := NewJWTManager("test-secret-at-least-32-chars-long", time.Hour, 15*time.Minute)
	_, err := mgr.GenerateToken(Realm("player"), "x")
	assert.Error(t, err)
}
