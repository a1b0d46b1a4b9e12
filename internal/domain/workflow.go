package domain

import (
	"fmt"
	"time"
)

// TestState is the lifecycle position of a quality test.
type TestState string

const (
	StateNew       TestState = "new"
	StateSampling  TestState = "sampling"
	StateViewing   TestState = "viewing"
	StateAvailable TestState = "available"
	StateBlocked   TestState = "blocked"
	StateAccepted  TestState = "accepted"
	StateRejected  TestState = "rejected"
)

var testStates = []TestState{
	StateNew, StateSampling, StateViewing, StateAvailable,
	StateBlocked, StateAccepted, StateRejected,
}

func ParseTestState(s string) (TestState, error) {
	for _, st := range testStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown test state %q", s)
}

// Closed states end the workflow and need a finish date.
func (s TestState) Closed() bool {
	return s == StateAccepted || s == StateRejected
}

// Restricted states may only be set by administrators.
func (s TestState) Restricted() bool {
	return s == StateNew || s == StateBlocked
}

// VisibilityScope declares who may see tests of a sampling type. It is
// empty (anyone), a role literal, or ScopeOwner.
type VisibilityScope string

const (
	ScopeUnrestricted VisibilityScope = ""
	// ScopeOwner limits visibility to the individual a test is exclusive to.
	ScopeOwner VisibilityScope = "owner"
)

// KnownScopes lists every scope a sampling type can declare.
func KnownScopes() []VisibilityScope {
	return []VisibilityScope{
		ScopeUnrestricted,
		ScopeOwner,
		VisibilityScope(RoleUser),
		VisibilityScope(RoleAdministrator),
	}
}

// Test is a quality test run against a lot.
type Test struct {
	ID            int64           `json:"id"`
	Lot           string          `json:"lot"`
	SamplingName  string          `json:"sampling_name"`
	SamplingScope VisibilityScope `json:"sampling_scope"`
	Structure     string          `json:"structure,omitempty"`
	State         TestState       `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
	TargetDate    *time.Time      `json:"target_date,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	LastUser      string          `json:"last_user,omitempty"`
	ExclusiveTo   string          `json:"exclusive_to,omitempty"`
}

// TestFilter narrows a test listing. Zero value lists everything.
type TestFilter struct {
	HideClosed bool
	// Viewer, when set, hides tests exclusive to anyone else.
	Viewer string
	// Scopes, when non-nil, restricts sampling types to these scopes.
	Scopes []VisibilityScope
}

// StateChange is a validated request to move a test to a new state.
type StateChange struct {
	TestID     int64
	State      TestState
	FinishedAt *time.Time
	Actor      string
}
