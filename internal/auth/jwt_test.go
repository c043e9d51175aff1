package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	req := require.New(t)
	v := NewVerifier("secret")

	token, err := v.Sign(Principal{Identity: "user-42", DisplayName: "Ada"}, time.Minute)
	req.NoError(err)

	p, err := v.Verify(token)
	req.NoError(err)
	req.Equal("user-42", p.Identity)
	req.Equal("Ada", p.DisplayName)
}

func TestVerifier_Rejects(t *testing.T) {
	req := require.New(t)
	v := NewVerifier("secret")

	// Wrong key
	other, err := NewVerifier("other").Sign(Principal{Identity: "user-42"}, time.Minute)
	req.NoError(err)
	_, err = v.Verify(other)
	req.ErrorIs(err, ErrInvalidToken)

	// Expired
	expired, err := v.Sign(Principal{Identity: "user-42"}, -time.Minute)
	req.NoError(err)
	_, err = v.Verify(expired)
	req.ErrorIs(err, ErrInvalidToken)

	// Unsigned
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x", "iss": issuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)
	_, err = v.Verify(none)
	req.ErrorIs(err, ErrInvalidToken)

	// Garbage
	_, err = v.Verify("not-a-token")
	req.ErrorIs(err, ErrInvalidToken)
}
