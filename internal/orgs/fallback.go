// Package orgs implements the organization-fallback recovery protocol.
//
// Tool calls assume an organization id (usually the configured default).
// When the remote system rejects the call because the subject workspace or
// view belongs to a different organization, the correct owner is resolved
// once from the entity itself and the call is retried exactly once. The
// corrected id is written back into the caller's shared Ref so dependent
// calls in the same invocation skip re-resolution.
package orgs

import (
	"context"
	"errors"
	"fmt"

	"analytics-mcp-server/internal/types"
)

// EntityType identifies the kind of entity whose owning organization can be
// looked up independently of a failed operation.
type EntityType string

const (
	EntityWorkspace EntityType = "WORKSPACE"
	EntityView      EntityType = "VIEW"
)

// Ref is a mutable single-slot holder for the organization id currently
// believed correct. It is owned by one top-level tool invocation for its
// lifetime and must not be shared across concurrent invocations.
type Ref struct {
	orgID string
}

// NewRef creates a holder seeded with the assumed organization id.
func NewRef(orgID string) *Ref {
	return &Ref{orgID: orgID}
}

// OrgID returns the holder's current value.
func (r *Ref) OrgID() string {
	return r.orgID
}

// set overwrites the holder in place; the correction is observable to
// whoever shares the Ref.
func (r *Ref) set(orgID string) {
	r.orgID = orgID
}

// Resolver looks up the organization that owns an entity. Implementations
// must fail with a descriptive error rather than return an empty id when
// the entity cannot be found.
type Resolver interface {
	WorkspaceOrgID(ctx context.Context, workspaceID string) (string, error)
	ViewOrgID(ctx context.Context, viewID string) (string, error)
}

// retryable reports whether err carries one of the remote codes meaning
// "entity belongs to a different organization than assumed". Anything else,
// including errors without a code, is not eligible for the fallback.
func retryable(err error) bool {
	var apiErr *types.AnalyticsError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode == types.ErrCodeOrgMismatch || apiErr.ErrorCode == types.ErrCodeWorkspaceNotInOrg
}

// WithFallback executes op with the holder's current organization id. On an
// org-mismatch failure it resolves the entity's true owner, overwrites the
// holder, and retries op exactly once. A second failure of any kind
// propagates; the resolver is never consulted more than once.
//
// A nil holder or an unsupported entity type is a usage error reported
// before any remote call is made.
func WithFallback[T any](ctx context.Context, resolver Resolver, ref *Ref, entityID string, entityType EntityType, op func(ctx context.Context, orgID string) (T, error)) (T, error) {
	var zero T
	if ref == nil {
		return zero, errors.New("orgs: org id must be passed in a *Ref holder so the correction is observable to the caller")
	}
	if entityType != EntityWorkspace && entityType != EntityView {
		return zero, fmt.Errorf("orgs: unsupported entity type %q", entityType)
	}

	result, err := op(ctx, ref.OrgID())
	if err == nil || !retryable(err) {
		return result, err
	}

	orgID, rerr := resolveOrgID(ctx, resolver, entityID, entityType)
	if rerr != nil {
		return zero, fmt.Errorf("orgs: resolving owner of %s %s: %w", entityType, entityID, rerr)
	}
	ref.set(orgID)

	return op(ctx, orgID)
}

func resolveOrgID(ctx context.Context, resolver Resolver, entityID string, entityType EntityType) (string, error) {
	switch entityType {
	case EntityWorkspace:
		return resolver.WorkspaceOrgID(ctx, entityID)
	case EntityView:
		return resolver.ViewOrgID(ctx, entityID)
	default:
		return "", fmt.Errorf("orgs: unsupported entity type %q", entityType)
	}
}
