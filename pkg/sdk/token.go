// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// CodeInvalidToken is the error code for malformed tokens.
const CodeInvalidToken = "INVALID_TOKEN"

// Token is a user token in JWT compact form. The signature is not verified
// client-side; the token is forwarded as is.
type Token struct {
	raw    string
	claims jwt.RegisteredClaims
}

// ParseToken parses a JWT without verifying its signature.
func ParseToken(raw string) (*Token, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, oops.Code(CodeInvalidToken).Wrap(err)
	}
	return &Token{raw: raw, claims: claims}, nil
}

// NewUnsignedToken issues an unsigned token for appID whose subject is
// subject. An empty subject yields an anonymous token.
func NewUnsignedToken(appID, subject string, issuedAt time.Time) (*Token, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   "plug",
		Audience: jwt.ClaimStrings{appID},
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(issuedAt),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).With("subject", subject).Wrap(err)
	}
	return &Token{raw: raw, claims: claims}, nil
}

// String returns the compact serialization, "" for a nil token.
func (t *Token) String() string {
	if t == nil {
		return ""
	}
	return t.raw
}

// Subject returns the user ID the token was issued for.
func (t *Token) Subject() string {
	if t == nil {
		return ""
	}
	return t.claims.Subject
}

// IsAnonymous reports whether the token identifies no user. A nil token is
// anonymous.
func (t *Token) IsAnonymous() bool {
	return t.Subject() == ""
}

// IssuedAt returns the issue time, zero when absent.
func (t *Token) IssuedAt() time.Time {
	if t.claims.IssuedAt == nil {
		return time.Time{}
	}
	return t.claims.IssuedAt.Time
}

// Equal reports whether both tokens have the same serialization.
// Two nil tokens are equal.
func (t *Token) Equal(other *Token) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.raw == other.raw
}
