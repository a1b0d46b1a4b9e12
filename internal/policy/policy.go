// Package policy holds the stateless authorization predicates consulted by
// protected operations after the session gate resolved the caller.
package policy

import "github.com/labqa/qualitylab/internal/domain"

// SelfOrAdmin reports whether actor may act on target's resources.
func SelfOrAdmin(actorEmail string, actorRole domain.Role, targetEmail string) bool {
	return actorEmail == targetEmail || actorRole.IsAdministrator()
}

func AdminOnly(actorRole domain.Role) bool {
	return actorRole.IsAdministrator()
}

// VisibleWorkflowState reports whether resources declared with scope may be
// shown to actorRole. ScopeOwner passes here; the caller must still check
// ownership with SelfOrAdmin.
func VisibleWorkflowState(actorRole domain.Role, scope domain.VisibilityScope) bool {
	switch {
	case actorRole.IsAdministrator():
		return true
	case scope == domain.ScopeUnrestricted, scope == domain.ScopeOwner:
		return true
	default:
		return string(scope) == string(actorRole)
	}
}

// VisibleScopes filters candidates down to those visible to actorRole.
func VisibleScopes(actorRole domain.Role, candidates []domain.VisibilityScope) []domain.VisibilityScope {
	out := make([]domain.VisibilityScope, 0, len(candidates))
	for _, s := range candidates {
		if VisibleWorkflowState(actorRole, s) {
			out = append(out, s)
		}
	}
	return out
}

// CanSeeTest combines the workflow rules for a single test: closed tests are
// administrator-only, exclusive tests belong to one individual, and the
// sampling type's scope must be visible.
func CanSeeTest(actorEmail string, actorRole domain.Role, t *domain.Test) bool {
	if actorRole.IsAdministrator() {
		return true
	}
	if t.State.Closed() {
		return false
	}
	if t.ExclusiveTo != "" && !SelfOrAdmin(actorEmail, actorRole, t.ExclusiveTo) {
		return false
	}
	if !VisibleWorkflowState(actorRole, t.SamplingScope) {
		return false
	}
	if t.SamplingScope == domain.ScopeOwner {
		return t.ExclusiveTo != "" && SelfOrAdmin(actorEmail, actorRole, t.ExclusiveTo)
	}
	return true
}

// CanSetState reports whether actorRole may move a test into state.
func CanSetState(actorRole domain.Role, state domain.TestState) bool {
	return !state.Restricted() || AdminOnly(actorRole)
}
