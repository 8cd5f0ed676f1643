package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/you-humble/ubattery/api/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type authenticator struct {
	secret []byte
}

// Auth returns a middleware that requires an HS256 bearer token signed with
// secret. An empty secret disables the check.
func Auth(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		return nil
	}
	a := &authenticator{secret: []byte(secret)}
	return a.wrap
}

func (a *authenticator) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := a.verify(r.Header.Get("Authorization"))
		if err != nil {
			slog.Info("unauthorized request",
				slog.String("url", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
			return
		}

		if subject != "" {
			slog.Debug("authorized request", slog.String("subject", subject))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *authenticator) verify(header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errors.New("missing bearer token")
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	return claims.Subject, nil
}
