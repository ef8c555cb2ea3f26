// Package gate decides, before a user record exists anywhere, whether a
// signup attempt may proceed. It is pure policy over the event: no store
// reads, no writes, so a denial leaves nothing to clean up.
package gate

import (
	apperrors "github.com/louisbranch/identitymesh/internal/platform/errors"
	"github.com/louisbranch/identitymesh/internal/tenant"
)

// Config is the pre-signup admission policy.
type Config struct {
	// AdminOnly rejects self-service signups; only registrations initiated
	// by an administrator pass.
	AdminOnly bool
	// Domains carries the email-domain allow-list, shared with tenant
	// resolution so both layers reject the same domains.
	Domains tenant.Config
}

// Input is the admission context of one signup attempt.
type Input struct {
	// Email may be empty for phone-only signups, which have no domain to
	// check and pass the allow-list.
	Email string
	// AdminInitiated is true when an administrator created the user rather
	// than the user signing up themselves.
	AdminInitiated bool
}

// Gate applies the admission policy.
type Gate struct {
	cfg Config
}

// New creates a registration gate.
func New(cfg Config) *Gate {
	cfg.Domains = cfg.Domains.Normalize()
	return &Gate{cfg: cfg}
}

// Check returns nil when the signup may proceed and a policy error
// otherwise. The error's public message is safe to surface to the person
// signing up.
func (g *Gate) Check(in Input) error {
	if g.cfg.AdminOnly && !in.AdminInitiated {
		return apperrors.New(apperrors.CodeAdminOnlySignup, "self-service signup disabled by policy")
	}
	if err := g.cfg.Domains.CheckDomainAllowed(in.Email); err != nil {
		return err
	}
	return nil
}
