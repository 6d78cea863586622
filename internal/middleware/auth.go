package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"btcpay-bridge/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const ServiceAuthHeader = "X-Service-Auth"

// ServiceAuth guards routes that only the billing panel may call. A request
// passes with X-Service-Auth equal to internalKey, or with an HS256 bearer
// token signed with jwtSecret that carries an expiry. With neither secret
// configured every request is rejected.
func ServiceAuth(internalKey, jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if internalKey != "" {
				got := r.Header.Get(ServiceAuthHeader)
				if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(internalKey)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			if len(secret) > 0 {
				if caller, ok := parseServiceToken(r.Header.Get("Authorization"), secret); ok {
					logger.FromCtx(r.Context()).Debug("Service token accepted", zap.String("caller", caller))
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.FromCtx(r.Context()).Warn("Unauthorized service request",
				zap.String("path", r.URL.Path),
				zap.String("remote_ip", r.RemoteAddr),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"code":    http.StatusUnauthorized,
				"message": "unauthorized",
			})
		})
	}
}

// parseServiceToken returns the token subject when the bearer token is valid.
func parseServiceToken(header string, secret []byte) (string, bool) {
	tokenStr, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenStr == "" {
		return "", false
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return "", false
	}
	return claims.Subject, true
}
