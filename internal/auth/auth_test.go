package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("test-secret")

	resp, err := svc.GenerateToken(Credentials{Address: "0xACME"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	require.Equal(t, "0xACME", claims.Address)
	require.NotNil(t, claims.ExpiresAt)
}

func TestGenerateTokenRequiresAddress(t *testing.T) {
	svc := NewService("test-secret")

	_, err := svc.GenerateToken(Credentials{})
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewService("secret-one")
	verifier := NewService("secret-two")

	resp, err := issuer.GenerateToken(Credentials{Address: "0xACME"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(resp.Token)
	require.Error(t, err)
}

func TestValidateTokenRejectsOtherSigningMethod(t *testing.T) {
	svc := NewService("test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Address: "0xACME"})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(tokenString)
	require.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := NewService("test-secret")

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
}

func TestGetAddress(t *testing.T) {
	require.Equal(t, "0xACME", GetAddress(jwt.MapClaims{"address": "0xACME"}))
	require.Empty(t, GetAddress(jwt.MapClaims{}))
	require.Empty(t, GetAddress("not-claims"))
}
