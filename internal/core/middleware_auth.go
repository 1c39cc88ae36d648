package core

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cvforge/internal/types"
)

// adminKeyHeader carries the operational override key. It authenticates
// as a system-level admin actor independently of user sessions.
const adminKeyHeader = "X-Admin-Key"

// AuthMiddleware resolves the bearer session token to an Actor and
// injects it into the request context. Requests carrying a valid
// X-Admin-Key instead authenticate as the admin actor. Public routes
// are mounted outside this middleware, so there is no path allowlist.
//
// Passes through when no Authenticator is configured, so tests can
// exercise handlers with a pre-seeded context.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if adminKey := r.Header.Get(adminKeyHeader); adminKey != "" {
			s.handleAdminKey(w, r, next, adminKey)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		user, err := s.Authenticator.Resolve(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}

		actor := types.Actor{
			ID:    user.ID,
			Type:  types.ActorTypeUser,
			Email: user.Email,
			Role:  user.Role,
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), actor)))
	})
}

// handleAdminKey compares the presented key against the configured one
// in constant time and injects the admin actor on match.
func (s *Server) handleAdminKey(w http.ResponseWriter, r *http.Request, next http.Handler, presented string) {
	configured := s.Config.Security.AdminAPIKey.Unmask()
	if configured == "" ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
		s.Logger.Warn("admin key rejected",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid admin key")
		return
	}

	actor := types.Actor{
		ID:   "admin",
		Type: types.ActorTypeAdmin,
		Role: types.RoleAdmin,
	}

	next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), actor)))
}

// extractBearerToken parses "Bearer <token>" with a case-insensitive
// scheme per RFC 7235. Returns "" when the header is malformed.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError writes the 401 matching the resolution failure. Codes
// other than the expected auth ones are logged and collapsed to a
// generic invalid-token response so internals do not leak.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthSessionExpired:
			s.writeAuthError(w, r, types.ErrCodeAuthSessionExpired, "Session has expired")
			return
		case types.ErrCodeAuthTokenInvalid, types.ErrCodeAuthTokenMissing:
			s.writeAuthError(w, r, appErr.Code, appErr.Message)
			return
		}
	}

	s.Logger.Error("authentication failed unexpectedly",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}

// RequireAdmin guards the operational surface (plan override, usage
// reset). Only admin-key or admin-role actors pass.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
			return
		}

		if !actor.IsAdmin() {
			JSON(w, r, http.StatusForbidden, APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodePermissionRole),
					Message:   "Admin access required",
					RequestID: types.GetRequestID(r.Context()),
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
