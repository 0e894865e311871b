package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/hlog"
)

type ctxKey string

// UserIDKey holds the authenticated admin's user id in the request context.
const UserIDKey ctxKey = "user_id"

// AdminJWT validates the bearer token with secret and lets the request through only
// when it carries role=admin. Accounts and token issuance live outside this service.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				deny(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(t *jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				hlog.FromRequest(r).Debug().Err(err).Msg("jwt rejected")
				deny(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if role, _ := claims["role"].(string); role != "admin" {
				deny(w, http.StatusForbidden, "admin role required")
				return
			}

			userID, _ := claims["user_id"].(string)
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, status int, msg string) {
	code := "UNAUTHORIZED"
	if status == http.StatusForbidden {
		code = "FORBIDDEN"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
