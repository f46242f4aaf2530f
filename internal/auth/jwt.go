// Package auth resolves the caller of an API request from its session token.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims carries the fields read from a Clerk session token.
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks session tokens signed either with the Clerk instance key
// (RS256) or with a shared secret (HS256).
type Verifier struct {
	publicKey *rsa.PublicKey
	secret    []byte
	issuer    string
}

func NewVerifier(publicKeyPEM, secret, issuer string) (*Verifier, error) {
	v := &Verifier{issuer: strings.TrimSpace(issuer)}

	if pemText := strings.TrimSpace(publicKeyPEM); pemText != "" {
		// Keys pasted into env files often carry escaped newlines.
		pemText = strings.ReplaceAll(pemText, `\n`, "\n")
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
		if err != nil {
			return nil, fmt.Errorf("parse clerk public key: %w", err)
		}
		v.publicKey = key
	}
	if secret != "" {
		v.secret = []byte(secret)
	}
	if v.publicKey == nil && v.secret == nil {
		return nil, errors.New("auth: public key or secret required")
	}
	return v, nil
}

// Verify parses tokenString and returns the subject (the user id).
func (v *Verifier) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods()),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFunc, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

func (v *Verifier) methods() []string {
	var methods []string
	if v.publicKey != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	if v.secret != nil {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	return methods
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA:
		if v.publicKey != nil {
			return v.publicKey, nil
		}
	case *jwt.SigningMethodHMAC:
		if v.secret != nil {
			return v.secret, nil
		}
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}
