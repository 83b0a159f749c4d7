// Package auth decides whether an actor may change a branch.
package auth

import (
	"context"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -o mocks/authorizer.go . Authorizer

// Authorizer checks an actor's credentials and branch permissions.
type Authorizer interface {
	// ValidateActor checks that username exists, is active and presented secret.
	// When branch is not empty, the actor must also be allowed to change it.
	// A denied actor is a Decision with Authorized unset, not an error.
	// Errors are reserved for failures of the backing store.
	ValidateActor(ctx context.Context, username, secret, branch string) (Decision, error)
}

// Reasons for denying an actor.
const (
	ReasonUnknownActor       = "unknown actor"
	ReasonInactive           = "account is inactive"
	ReasonBadSecret          = "secret does not match"
	ReasonBranchNotPermitted = "branch is not in the actor's permitted branches"
)

// Decision is the outcome of validating an actor.
type Decision struct {
	Authorized bool
	// Reason explains a denial.
	Reason string
	// SuperUser actors may change any branch.
	SuperUser bool
	// CanCreateBranches is set for actors allowed to create branches.
	CanCreateBranches bool
}

// Allow returns an authorizing decision.
func Allow() Decision {
	return Decision{Authorized: true}
}

// Deny returns a denying decision.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}
