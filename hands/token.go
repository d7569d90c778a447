/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hands

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const tokenIssuer = "handsup"

type identityClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// TokenCodec signs identities so that the client-echoed copy kept in a cookie
// can be verified instead of trusted. A token is only valid for the session
// whose guest address it was issued for.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec returns a codec signing with secret. An empty secret is
// replaced by 32 random bytes, which invalidates all tokens on restart; that
// matches the lifetime of the in-memory sessions anyway.
func NewTokenCodec(secret []byte, ttl time.Duration) (*TokenCodec, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}

	return &TokenCodec{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue returns a signed token binding user to the session at guestAddress.
func (c *TokenCodec) Issue(guestAddress uuid.UUID, user Identity) (string, error) {
	now := c.now()

	claims := identityClaims{
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			Subject:  user.ID.String(),
			Audience: jwt.ClaimStrings{guestAddress.String()},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks the signature and audience of token and returns the identity
// it carries. Any failure is reported as ErrMalformedIdentity.
func (c *TokenCodec) Verify(token string, guestAddress uuid.UUID) (Identity, error) {
	var claims identityClaims

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformedIdentity, err)
	}

	if claims.Issuer != tokenIssuer || !claims.VerifyAudience(guestAddress.String(), true) {
		return Identity{}, fmt.Errorf("%w: token not issued for this session", ErrMalformedIdentity)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return Identity{}, fmt.Errorf("%w: bad subject", ErrMalformedIdentity)
	}
	if claims.Name == "" {
		return Identity{}, errors.Join(ErrMalformedIdentity, ErrInvalidName)
	}

	return Identity{Name: claims.Name, ID: id}, nil
}
