package auth

import (
	"context"
	"slices"
	"strings"
)

// Roles recognised on staff tokens.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// StaffIdentity is the verified Firebase principal behind a back-office request.
type StaffIdentity struct {
	UID   string
	Email string
	Roles []string
}

// HasRole reports whether the identity carries role (case-insensitive).
func (i *StaffIdentity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	return role != "" && slices.Contains(i.Roles, role)
}

// Actor returns the label recorded on audit fields such as Reconciliation.ResolvedBy.
func (i *StaffIdentity) Actor() string {
	if i == nil {
		return ""
	}
	if i.Email != "" {
		return i.Email
	}
	return i.UID
}

// ServiceIdentity is the verified Google service account behind an internal request.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
}

type staffContextKey struct{}

type serviceContextKey struct{}

// WithStaffIdentity stores the identity on the context.
func WithStaffIdentity(ctx context.Context, identity *StaffIdentity) context.Context {
	return context.WithValue(ctx, staffContextKey{}, identity)
}

// StaffIdentityFromContext returns the identity stored by RequireStaff.
func StaffIdentityFromContext(ctx context.Context) (*StaffIdentity, bool) {
	identity, ok := ctx.Value(staffContextKey{}).(*StaffIdentity)
	return identity, ok && identity != nil
}

// WithServiceIdentity stores the identity on the context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	return context.WithValue(ctx, serviceContextKey{}, identity)
}

// ServiceIdentityFromContext returns the identity stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceContextKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
