// Package middleware provides HTTP middleware for the gateway.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// IdentityKey is the context key for the resolved model.Identity.
	IdentityKey ContextKey = "identity"
)

// IdentityCookie is the cookie carrying the signed identity token.
const IdentityCookie = "zyeon_session"

// Claims is the identity token. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// IdentityConfig configures the identity cookie.
type IdentityConfig struct {
	Secret string
	MaxAge time.Duration
	Secure bool
}

// Identity resolves the anonymous caller from a signed cookie, minting a
// fresh user and session on first contact or when the token is invalid.
func Identity(cfg IdentityConfig) func(http.Handler) http.Handler {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := parseIdentity(r, cfg.Secret)
			if !ok {
				id = model.NewIdentity()
				if token, err := SignIdentity(id, cfg.Secret, cfg.MaxAge, time.Now()); err == nil {
					http.SetCookie(w, &http.Cookie{
						Name:     IdentityCookie,
						Value:    token,
						Path:     "/",
						MaxAge:   int(cfg.MaxAge.Seconds()),
						HttpOnly: true,
						Secure:   cfg.Secure,
						SameSite: http.SameSiteLaxMode,
					})
				}
			}
			ctx := context.WithValue(r.Context(), IdentityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SignIdentity issues an HMAC-signed identity token.
func SignIdentity(id model.Identity, secret string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("identity secret is empty")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "zyeon-gateway",
		},
		SessionID: id.SessionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseIdentity validates a token and returns its identity.
func ParseIdentity(tokenString, secret string) (model.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return model.Identity{}, err
	}
	if !token.Valid || claims.Subject == "" || claims.SessionID == "" {
		return model.Identity{}, jwt.ErrTokenInvalidClaims
	}
	return model.Identity{UserID: claims.Subject, SessionID: claims.SessionID}, nil
}

func parseIdentity(r *http.Request, secret string) (model.Identity, bool) {
	if secret == "" {
		return model.Identity{}, false
	}
	token := ""
	if c, err := r.Cookie(IdentityCookie); err == nil {
		token = c.Value
	} else if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	}
	if token == "" {
		return model.Identity{}, false
	}
	id, err := ParseIdentity(token, secret)
	if err != nil {
		return model.Identity{}, false
	}
	return id, true
}

// GetIdentity returns the identity resolved by Identity.
func GetIdentity(ctx context.Context) model.Identity {
	if v, ok := ctx.Value(IdentityKey).(model.Identity); ok {
		return v
	}
	return model.Identity{}
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	return GetIdentity(ctx).UserID
}
