// Package jwt verifies the bearer tokens clients present in the auth envelope.
package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/webitel/im-chat-hub/config"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/service"
)

var _ service.CredentialVerifier = (*Verifier)(nil)

// Claims is the token payload issued by the REST API: {id, username}.
type Claims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with the shared secret.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

func NewFromConfig(cfg *config.Config) *Verifier {
	return NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
}

// Verify returns the identity in token. Every failure is an AuthError whose
// message is safe to send back to the client.
func (v *Verifier) Verify(_ context.Context, token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, model.NewAuthError(model.ReasonMissingToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, &model.Error{Kind: model.KindAuth, Message: model.ReasonExpiredToken, Err: err}
		}
		return model.Identity{}, &model.Error{Kind: model.KindAuth, Message: model.ReasonInvalidToken, Err: err}
	}
	if !parsed.Valid {
		return model.Identity{}, model.NewAuthError(model.ReasonInvalidToken)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return model.Identity{}, model.NewAuthError(model.ReasonInvalidToken)
	}
	return model.Identity{UserID: userID, Username: claims.Username}, nil
}

// Issue signs a token for id. Used by the seed command and tests; the REST API
// issues the real ones.
func (v *Verifier) Issue(id model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   id.UserID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
