// Package confirmation implements the pending-request gate (C6) that holds
// a risky operation until the caller approves, rejects, or lets it expire.
package confirmation

import (
	"errors"
	"time"

	"github.com/haasonsaas/dbagent/internal/safety"
)

// TTL is how long a pending request remains valid before it is treated as
// expired.
const TTL = 5 * time.Minute

var (
	// ErrAlreadyPending is returned by Request when a request is already
	// outstanding: at most one pending request per workflow instance.
	ErrAlreadyPending = errors.New("confirmation: a request is already pending")
	// ErrNoPending is returned by the resolution methods when there is
	// nothing to resolve.
	ErrNoPending = errors.New("confirmation: no pending request")
	// ErrExpired is returned when resolving a request whose TTL has
	// elapsed; the caller observes this in place of an approval.
	ErrExpired = errors.New("confirmation: request expired")
	// ErrTierMismatch is returned when the resolution method doesn't match
	// the request's tier (e.g. calling Confirm on a Typed request).
	ErrTierMismatch = errors.New("confirmation: wrong approval method for this request's tier")
	// ErrTypedMismatch is returned when ConfirmTyped's value doesn't match
	// the request's expected string.
	ErrTypedMismatch = errors.New("confirmation: typed value does not match")
)

// Request is a pending risky-operation ticket (ConfirmationRequest).
type Request struct {
	ID            string
	Operation     string
	SQL           string
	Tier          safety.ConfirmationTier
	ExpectedMatch string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

func (r *Request) expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Gate holds at most one pending Request for a single agent/workflow
// instance. It is not safe for concurrent use across goroutines without
// external synchronization — the agentic loop that owns it processes one
// turn at a time (cooperative suspension model), so none is
// provided here.
type Gate struct {
	pending *Request
}

// NewGate constructs an empty confirmation gate.
func NewGate() *Gate {
	return &Gate{}
}

// Request stores a new pending request. Fails if one is already pending.
func (g *Gate) Request(operation, sql string, tier safety.ConfirmationTier, expectedMatch string, now time.Time) (*Request, error) {
	if g.pending != nil {
		return nil, ErrAlreadyPending
	}
	req := &Request{
		ID:            operation + "-" + now.Format(time.RFC3339Nano),
		Operation:     operation,
		SQL:           sql,
		Tier:          tier,
		ExpectedMatch: expectedMatch,
		CreatedAt:     now,
		ExpiresAt:     now.Add(TTL),
	}
	g.pending = req
	return req, nil
}

// IsPending reports whether a request is outstanding and not yet expired as
// of now. An expired request is lazily cleared as a side effect: a pending
// request older than TTL is treated as rejected.
func (g *Gate) IsPending(now time.Time) bool {
	if g.pending == nil {
		return false
	}
	if g.pending.expired(now) {
		g.pending = nil
		return false
	}
	return true
}

// Pending returns the current pending request, or nil.
func (g *Gate) Pending() *Request {
	return g.pending
}

// resolve is the shared preamble for every approval method: checks there is
// a pending request and that it hasn't expired, clearing it either way.
func (g *Gate) resolve(now time.Time) (*Request, error) {
	if g.pending == nil {
		return nil, ErrNoPending
	}
	req := g.pending
	if req.expired(now) {
		g.pending = nil
		return nil, ErrExpired
	}
	return req, nil
}

// Confirm approves a Simple-tier request.
func (g *Gate) Confirm(now time.Time) error {
	req, err := g.resolve(now)
	if err != nil {
		return err
	}
	if req.Tier != safety.TierSimple {
		return ErrTierMismatch
	}
	g.pending = nil
	return nil
}

// ConfirmTyped approves a Typed-tier request iff value case-sensitively
// equals the request's expected match string (typically the operation
// keyword, e.g. "DELETE").
func (g *Gate) ConfirmTyped(value string, now time.Time) error {
	req, err := g.resolve(now)
	if err != nil {
		return err
	}
	if req.Tier != safety.TierTyped {
		return ErrTierMismatch
	}
	if value != req.ExpectedMatch {
		// The request remains pending: a wrong guess is not a
		// resolution, it's a retry opportunity within the TTL.
		g.pending = req
		return ErrTypedMismatch
	}
	g.pending = nil
	return nil
}

// AdminApprove approves an AdminApproval-tier request. The caller is
// responsible for verifying the admin's credential (JWT-bound
// approval) before invoking this method; the gate itself only enforces the
// tier and TTL.
func (g *Gate) AdminApprove(now time.Time) error {
	req, err := g.resolve(now)
	if err != nil {
		return err
	}
	if req.Tier != safety.TierAdminApproval {
		return ErrTierMismatch
	}
	g.pending = nil
	return nil
}

// Cancel discards the pending request unconditionally.
func (g *Gate) Cancel() {
	g.pending = nil
}
