package auth

import (
	"context"
	"net/http"
	"slices"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/httpx"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/requestctx"
)

const defaultRoleClaim = "role"

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// StaffAuthenticator guards back-office routes with Firebase ID tokens carrying a role claim.
type StaffAuthenticator struct {
	verifier  TokenVerifier
	roleClaim string
}

// StaffOption customises the authenticator.
type StaffOption func(*StaffAuthenticator)

// WithRoleClaim overrides the custom claim holding roles.
func WithRoleClaim(claim string) StaffOption {
	return func(a *StaffAuthenticator) {
		if claim != "" {
			a.roleClaim = claim
		}
	}
}

// NewStaffAuthenticator constructs a StaffAuthenticator.
func NewStaffAuthenticator(verifier TokenVerifier, opts ...StaffOption) *StaffAuthenticator {
	a := &StaffAuthenticator{verifier: verifier, roleClaim: defaultRoleClaim}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireStaff admits requests whose bearer token carries at least one of roles. With no
// roles listed any verified token is admitted.
func (a *StaffAuthenticator) RequireStaff(roles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "staff authentication is not configured", http.StatusServiceUnavailable))
				return
			}

			verified, err := a.verifier.VerifyIDToken(ctx, token)
			if err != nil {
				code, msg := "invalid_token", "id token verification failed"
				switch {
				case firebaseauth.IsIDTokenExpired(err):
					code, msg = "token_expired", "id token expired"
				case firebaseauth.IsIDTokenRevoked(err):
					code, msg = "token_revoked", "id token revoked"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, msg, http.StatusUnauthorized))
				return
			}

			identity := &StaffIdentity{
				UID:   verified.UID,
				Email: claimString(verified.Claims, "email"),
				Roles: rolesFromClaims(verified.Claims, a.roleClaim),
			}
			if len(allowed) > 0 && !slices.ContainsFunc(identity.Roles, func(role string) bool {
				return slices.Contains(allowed, role)
			}) {
				httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "staff role required", http.StatusForbidden))
				return
			}

			ctx = WithStaffIdentity(ctx, identity)
			requester, _ := requestctx.RequesterFrom(ctx)
			requester.StaffUID = identity.UID
			ctx = requestctx.WithRequester(ctx, requester)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rolesFromClaims accepts "staff", ["staff","admin"] or {"staff": true}.
func rolesFromClaims(claims map[string]interface{}, key string) []string {
	var out []string
	add := func(role string) {
		if role = normaliseRole(role); role != "" && !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	switch v := claims[key].(type) {
	case string:
		add(v)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, item := range v {
			add(item)
		}
	case map[string]interface{}:
		for role, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				add(role)
			}
		}
	}
	slices.Sort(out)
	return out
}

func claimString(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}
