package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"idverify/pkg/platform/httputil"
	request "idverify/pkg/platform/middleware/request"
	"idverify/pkg/requestcontext"
)

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims the validator extracts from a token.
type JWTClaims struct {
	UserID   string
	ClientID string
	// Claims is the full claim set; it becomes the user document.
	Claims map[string]any
}

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	return requestcontext.UserID(ctx)
}

// GetClientID retrieves the token's client from the context.
func GetClientID(ctx context.Context) string {
	return requestcontext.ClientID(ctx)
}

func writeUnauthorized(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
		Error:            "invalid_token",
		ErrorDescription: desc,
	})
}

// RequireAuth rejects requests without a valid bearer token. It runs before
// any resource lookup, so a bad token always wins over a 404.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}
			if claims.UserID == "" {
				logger.WarnContext(ctx, "unauthorized access - token without subject",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			ctx = requestcontext.WithClientID(ctx, claims.ClientID)
			ctx = requestcontext.WithUserClaims(ctx, claims.Claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
