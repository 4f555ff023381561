package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const staffClaimsKey contextKey = "staffClaims"

var (
	ErrAuthDisabled = errors.New("auth: signing secret not configured")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrMissingOrg   = errors.New("auth: token has no org")
)

// StaffClaims identifies a clinic staff member working an org's board.
type StaffClaims struct {
	OrgID string `json:"org_id"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for subject in org, valid for ttl.
func SignToken(secret, orgID, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrAuthDisabled
	}
	now := time.Now()
	claims := StaffClaims{
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	return signed, nil
}

// ParseToken verifies an HMAC-signed staff token. It is shared by the HTTP
// middleware and the live stats subscribe handshake.
func ParseToken(secret, tokenString string) (StaffClaims, error) {
	if secret == "" {
		return StaffClaims{}, ErrAuthDisabled
	}
	claims := StaffClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return StaffClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.OrgID) == "" {
		return StaffClaims{}, ErrMissingOrg
	}
	return claims, nil
}

// StaffJWT enforces a bearer staff token on board endpoints.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := ParseToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), staffClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaffClaimsFromContext returns staff claims if present.
func StaffClaimsFromContext(ctx context.Context) (StaffClaims, bool) {
	claims, ok := ctx.Value(staffClaimsKey).(StaffClaims)
	return claims, ok
}

// OrgIDFromContext returns the org of the authenticated staff member.
func OrgIDFromContext(ctx context.Context) string {
	claims, ok := StaffClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.OrgID
}

// WithStaffClaims stores claims on ctx. Handlers mounted without the
// middleware (tests, internal calls) use it to impersonate a staff member.
func WithStaffClaims(ctx context.Context, claims StaffClaims) context.Context {
	return context.WithValue(ctx, staffClaimsKey, claims)
}
