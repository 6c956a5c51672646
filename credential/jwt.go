// Package credential decodes v3 tokens into member handles.
package credential

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"chflow"
)

// Claims is the payload of a v3 token.
type Claims struct {
	Handle string   `json:"handle"`
	UserID string   `json:"userId"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTDecoder extracts the handle from a v3 JWT.
//
// Without a verification key the signature is not checked: the token only
// selects whose data to ask for, and the API re-validates it on every call.
type JWTDecoder struct {
	key    []byte
	parser *jwt.Parser
}

var _ chflow.CredentialDecoder = (*JWTDecoder)(nil)

// Option configures a JWTDecoder.
type Option func(*JWTDecoder)

// WithVerifyKey makes the decoder verify HS256 signatures with key.
func WithVerifyKey(key []byte) Option {
	return func(d *JWTDecoder) {
		d.key = append([]byte(nil), key...)
	}
}

// NewJWTDecoder creates a decoder.
func NewJWTDecoder(opts ...Option) *JWTDecoder {
	d := &JWTDecoder{}
	for _, opt := range opts {
		opt(d)
	}
	d.parser = jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return d
}

// Handle returns the member handle carried by token.
func (d *JWTDecoder) Handle(token string) (string, error) {
	claims, err := d.Claims(token)
	if err != nil {
		return "", err
	}
	return claims.Handle, nil
}

// Claims decodes token.
func (d *JWTDecoder) Claims(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, chflow.ErrNoCredentials
	}

	claims := &Claims{}
	var err error
	if d.key == nil {
		_, _, err = d.parser.ParseUnverified(token, claims)
	} else {
		_, err = d.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return d.key, nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chflow.ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Handle) == "" {
		return nil, fmt.Errorf("%w: no handle claim", chflow.ErrInvalidToken)
	}
	return claims, nil
}
