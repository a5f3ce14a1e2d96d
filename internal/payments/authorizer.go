package payments

import (
	"context"
	"math/rand/v2"
)

// Authorizer models the external payment network's approval step. Production
// code depends only on this interface; the simulated implementation stands in
// for a real gateway.
type Authorizer interface {
	Authorize(ctx context.Context) (bool, error)
}

// SimulatedAuthorizer approves a fixed fraction of requests.
type SimulatedAuthorizer struct {
	ApprovalRate float64
}

func NewSimulatedAuthorizer(rate float64) *SimulatedAuthorizer {
	return &SimulatedAuthorizer{ApprovalRate: rate}
}

func (a *SimulatedAuthorizer) Authorize(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return rand.Float64() < a.ApprovalRate, nil
}

// StaticAuthorizer always answers the same; the deterministic double for tests.
type StaticAuthorizer struct {
	Approve bool
	Err     error
}

func (a StaticAuthorizer) Authorize(ctx context.Context) (bool, error) {
	return a.Approve, a.Err
}
