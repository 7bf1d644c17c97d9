package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/httpx"
)

// VerificationRecorder observes token verification outcomes.
type VerificationRecorder func(kind, outcome string, elapsed time.Duration)

// OIDCValidator verifies Google-signed OIDC tokens sent by Cloud Scheduler and other internal
// callers.
type OIDCValidator struct {
	cache    *JWKSCache
	logger   *zap.Logger
	recorder VerificationRecorder
	now      func() time.Time
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// WithOIDCLogger sets the logger.
func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithVerificationRecorder sets the metrics hook.
func WithVerificationRecorder(recorder VerificationRecorder) OIDCOption {
	return func(v *OIDCValidator) { v.recorder = recorder }
}

// WithOIDCClock overrides the time source used for timing.
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewOIDCValidator constructs an OIDCValidator backed by cache.
func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{cache: cache, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// RequireOIDC admits requests whose bearer token is signed by Google, issued by one of issuers
// and addressed to audience.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := v.now()
			reject := func(status int, code, outcome string) {
				v.record(outcome, start)
				httpx.WriteError(ctx, w, httpx.NewError(code, "service token verification failed", status))
			}

			if audience == "" || v.cache == nil {
				reject(http.StatusServiceUnavailable, "verification_unavailable", "not_configured")
				return
			}
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject(http.StatusUnauthorized, "unauthenticated", "token_missing")
				return
			}

			claims := jwt.MapClaims{}
			parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
			if _, err := parser.ParseWithClaims(token, claims, v.cache.Keyfunc(ctx)); err != nil {
				if errors.Is(err, ErrJWKSFetchFailed) {
					v.logger.Warn("oidc jwks unavailable", zap.Error(err))
					reject(http.StatusServiceUnavailable, "verification_unavailable", "jwks_unavailable")
					return
				}
				reject(http.StatusUnauthorized, "invalid_token", "token_invalid")
				return
			}

			issuer, _ := claims["iss"].(string)
			if len(issuers) > 0 && !slices.Contains(issuers, issuer) {
				reject(http.StatusUnauthorized, "invalid_token", "issuer_mismatch")
				return
			}
			if !claims.VerifyAudience(audience, true) {
				reject(http.StatusUnauthorized, "invalid_token", "audience_mismatch")
				return
			}

			identity := &ServiceIdentity{Issuer: issuer, Audience: audience}
			identity.Subject, _ = claims["sub"].(string)
			identity.Email, _ = claims["email"].(string)

			v.record("ok", start)
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) record(outcome string, start time.Time) {
	if v.recorder != nil {
		v.recorder("oidc", outcome, v.now().Sub(start))
	}
}
