// Package auth verifies the signed session tokens that the account
// directory issues. Tokens are compact HS256 JWTs carrying the user
// identity in a "uid" claim; verification is a pure function of the token
// and the shared secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// sessionClaims is the private claim set alongside the registered claims.
type sessionClaims struct {
	UID string `json:"uid"`
}

// Verifier checks session token signatures and expiry against a shared
// secret. It implements chat.TokenVerifier.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret cannot be empty")
	}
	return &Verifier{secret: secret, now: time.Now}, nil
}

// Verify parses and validates a session token and returns the user
// identity it asserts. Malformed, wrongly signed, and expired tokens all
// fail with a *chat.AuthError.
func (v *Verifier) Verify(token string) (chat.UserID, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return "", &chat.AuthError{Reason: "malformed token", Err: err}
	}

	var std jwt.Claims
	var priv sessionClaims
	if err := parsed.Claims(v.secret, &std, &priv); err != nil {
		return "", &chat.AuthError{Reason: "invalid signature", Err: err}
	}

	if err := std.ValidateWithLeeway(jwt.Expected{Time: v.now()}, 0); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return "", &chat.AuthError{Reason: "token expired", Err: err}
		}
		return "", &chat.AuthError{Reason: "invalid claims", Err: err}
	}

	if priv.UID == "" {
		return "", &chat.AuthError{Reason: "token has no uid claim"}
	}
	return chat.UserID(priv.UID), nil
}

// Signer mints session tokens with the same shared secret. The account
// directory owns token issuance in production; the Signer exists for the
// local run mode and for tests.
type Signer struct {
	signer jose.Signer
}

// NewSigner creates an HS256 Signer from the shared secret.
func NewSigner(secret []byte) (*Signer, error) {
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}
	return &Signer{signer: sig}, nil
}

// Sign issues a token for userID that expires after ttl.
func (s *Signer) Sign(userID chat.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	std := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}
	priv := sessionClaims{UID: userID.String()}

	token, err := jwt.Signed(s.signer).Claims(std).Claims(priv).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}
