// Package event publishes session events and reacts to identity changes
// reported by other services.
package event

import (
	pkgkafka "github.com/labqa/qualitylab/pkg/kafka"
)

// Source identifies events published by this service.
const Source = "qualitylab-auth"

var (
	TopicLoggedIn        = pkgkafka.Topic("session", "logged_in")
	TopicSessionsRevoked = pkgkafka.Topic("session", "revoked")
	TopicIdentityChanged = pkgkafka.Topic("identity", "changed")
)

// Event types carried in the envelope.
const (
	TypeLoggedIn        = "session.logged_in"
	TypeSessionsRevoked = "session.revoked"
	TypeIdentityChanged = "identity.changed"
)

// Revocation scopes reported in SessionsRevokedData.
const (
	ScopeSelf    = "self"
	ScopeOther   = "other"
	ScopeAll     = "all"
	ScopeSession = "session"
)

// Reasons reported in IdentityChangedData.
const (
	ReasonRemoved     = "removed"
	ReasonRoleChanged = "role_changed"
	ReasonPassword    = "password_changed"
)

type LoggedInData struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SessionsRevokedData describes one successful revocation. Target is empty
// for ScopeAll.
type SessionsRevokedData struct {
	Scope   string `json:"scope"`
	Actor   string `json:"actor"`
	Target  string `json:"target,omitempty"`
	Revoked int64  `json:"revoked"`
}

type IdentityChangedData struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
	Role   string `json:"role,omitempty"`
}
