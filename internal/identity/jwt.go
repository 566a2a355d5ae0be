package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"metarepo/internal/model"
)

// Claims is the token body accepted by JWTAuthenticator.
type Claims struct {
	Groups []string `json:"groups"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HS256 tokens locally instead of calling the
// identity service.
type JWTAuthenticator struct {
	secret []byte
}

var _ Authenticator = (*JWTAuthenticator)(nil)

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (*model.Principal, error) {
	raw := rawToken(token)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing bearer token", model.ErrAuthorization)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAuthorization, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token without subject", model.ErrAuthorization)
	}

	p := &model.Principal{
		Username:  claims.Subject,
		ExpiresAt: claims.ExpiresAt.UnixMilli(),
	}
	for _, g := range claims.Groups {
		p.OwnerGroups = append(p.OwnerGroups, model.Group{IDMGroupID: g})
	}
	return p, nil
}

// Sign issues a token for p. Used by operators and tests to mint credentials.
func (a *JWTAuthenticator) Sign(p *model.Principal) (string, error) {
	claims := Claims{
		Groups: p.GroupIDs(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			ExpiresAt: jwt.NewNumericDate(time.UnixMilli(p.ExpiresAt)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
