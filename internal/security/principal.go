package security

import (
	"context"

	"habitheroes/internal/models"
)

// PrincipalKind tags who is behind a request
type PrincipalKind string

const (
	PrincipalParent PrincipalKind = "parent"
	PrincipalChild  PrincipalKind = "child"
)

// Principal is the authenticated caller of a request: either a parent user
// or a child profile, always scoped to one family
type Principal struct {
	Kind         PrincipalKind
	User         *models.User
	Child        *models.Child
	FamilyID     int64
	SessionToken string
}

// IsParent reports whether the caller is a parent
func (p *Principal) IsParent() bool {
	return p != nil && p.Kind == PrincipalParent && p.User != nil
}

// IsChild reports whether the caller is a child
func (p *Principal) IsChild() bool {
	return p != nil && p.Kind == PrincipalChild && p.Child != nil
}

// DisplayName is the name recorded when the caller reviews something
func (p *Principal) DisplayName() string {
	switch {
	case p.IsParent():
		return p.User.Name
	case p.IsChild():
		return p.Child.Name
	}
	return ""
}

// CanActFor reports whether the caller may act on behalf of child: parents
// for any child in their family, children only for themselves
func (p *Principal) CanActFor(child *models.Child) bool {
	if child == nil {
		return false
	}
	switch {
	case p.IsParent():
		return child.FamilyID == p.FamilyID
	case p.IsChild():
		return child.ID == p.Child.ID
	}
	return false
}

type principalKey struct{}

// WithPrincipal stores the principal in the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// CurrentPrincipal returns the request's principal or nil
func CurrentPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
