// Package tenant maps a registration context to at most one tenant.
//
// Resolution is pure policy: the only I/O is invitation validation, which is
// delegated to an InvitationValidator. Each strategy is one closed case; a
// new strategy is a new explicit case, never an implicit fallback.
package tenant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	apperrors "github.com/louisbranch/identitymesh/internal/platform/errors"
	"github.com/louisbranch/identitymesh/internal/store"
)

// Strategy selects how a tenant is derived at registration time.
type Strategy string

const (
	// StrategyDomain maps the email domain through a configured table,
	// optionally falling back to a synthesized personal tenant.
	StrategyDomain Strategy = "domain"
	// StrategyInvitation trusts a TENANT:CODE invitation code, validated
	// against invitation records.
	StrategyInvitation Strategy = "invitation"
	// StrategyPersonal always synthesizes a personal tenant owned by the user.
	StrategyPersonal Strategy = "personal"
	// StrategyStrict resolves only through an explicit hint or the domain
	// table and never falls back to a personal tenant.
	StrategyStrict Strategy = "strict"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyDomain:
		return StrategyDomain, nil
	case StrategyInvitation:
		return StrategyInvitation, nil
	case StrategyPersonal:
		return StrategyPersonal, nil
	case StrategyStrict:
		return StrategyStrict, nil
	default:
		return "", fmt.Errorf("unknown tenant strategy %q", s)
	}
}

// Config is the immutable tenant-resolution policy, constructed once at
// process start.
type Config struct {
	Strategy             Strategy
	DomainTenants        map[string]string
	AllowedDomains       []string
	AllowPersonalTenants bool
	RequireTenant        bool
}

// Normalize case-folds the domain table and allow-list so lookups match the
// case-folded email domain.
func (c Config) Normalize() Config {
	if len(c.DomainTenants) > 0 {
		mapped := make(map[string]string, len(c.DomainTenants))
		for domain, tenantID := range c.DomainTenants {
			mapped[strings.ToLower(strings.TrimSpace(domain))] = tenantID
		}
		c.DomainTenants = mapped
	}
	if len(c.AllowedDomains) > 0 {
		allowed := make([]string, 0, len(c.AllowedDomains))
		for _, domain := range c.AllowedDomains {
			domain = strings.ToLower(strings.TrimSpace(domain))
			if domain != "" {
				allowed = append(allowed, domain)
			}
		}
		c.AllowedDomains = allowed
	}
	return c
}

// CheckDomainAllowed rejects emails outside the allow-list. An empty list
// allows every domain. An absent email has no domain to check and passes;
// the email-absent policy is decided by the caller, not here.
func (c Config) CheckDomainAllowed(email string) error {
	if len(c.AllowedDomains) == 0 || email == "" {
		return nil
	}
	domain, ok := EmailDomain(email)
	if !ok {
		return apperrors.New(apperrors.CodeDomainNotAllowed, "email has no parseable domain")
	}
	for _, allowed := range c.AllowedDomains {
		if domain == allowed {
			return nil
		}
	}
	return apperrors.WithMetadata(apperrors.CodeDomainNotAllowed,
		fmt.Sprintf("email domain %s not in allow-list", domain),
		map[string]string{"domain": domain})
}

// EmailDomain extracts the case-folded domain part of an email address.
func EmailDomain(email string) (string, bool) {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "", false
	}
	return strings.ToLower(email[at+1:]), true
}

// Context is the registration context a tenant is resolved from.
type Context struct {
	SubjectID      string
	Email          string
	TenantHint     string
	InvitationCode string
}

// Resolution is the outcome of tenant resolution. An unresolved result with
// a nil error means single-tenant mode: downstream records are created
// without tenant scoping.
type Resolution struct {
	Resolved bool
	TenantID string
	Role     string
}

// InvitationValidator checks that a tenant invitation code is valid and
// unexpired. It returns the role the invitation grants (empty means member)
// or a domain error describing why the code cannot be trusted.
type InvitationValidator interface {
	Validate(ctx context.Context, tenantID, code string) (role string, err error)
}

// Resolver applies one configured strategy to registration contexts.
type Resolver struct {
	cfg         Config
	invitations InvitationValidator
}

// NewResolver creates a resolver for the given policy. The validator may be
// nil when the strategy never consults invitations.
func NewResolver(cfg Config, invitations InvitationValidator) *Resolver {
	return &Resolver{cfg: cfg.Normalize(), invitations: invitations}
}

// Resolve maps a registration context to zero or one tenant. The
// allow-list check runs before any strategy; when the policy requires a
// tenant and none resolves, the whole registration fails.
func (r *Resolver) Resolve(ctx context.Context, reg Context) (Resolution, error) {
	if err := r.cfg.CheckDomainAllowed(reg.Email); err != nil {
		return Resolution{}, err
	}

	var res Resolution
	switch r.cfg.Strategy {
	case StrategyDomain:
		res = r.resolveDomain(reg)
	case StrategyInvitation:
		var err error
		res, err = r.resolveInvitation(ctx, reg)
		if err != nil {
			return Resolution{}, err
		}
	case StrategyPersonal:
		res = personalResolution(reg)
	case StrategyStrict:
		res = r.resolveStrict(reg)
	default:
		return Resolution{}, fmt.Errorf("unknown tenant strategy %q", r.cfg.Strategy)
	}

	if !res.Resolved && r.cfg.RequireTenant {
		return Resolution{}, apperrors.New(apperrors.CodeTenantRequired, "no tenant resolved and policy requires one")
	}
	return res, nil
}

func (r *Resolver) resolveDomain(reg Context) Resolution {
	if domain, ok := EmailDomain(reg.Email); ok {
		if tenantID, mapped := r.cfg.DomainTenants[domain]; mapped {
			return Resolution{Resolved: true, TenantID: tenantID, Role: store.RoleMember}
		}
	}
	if r.cfg.AllowPersonalTenants {
		return personalResolution(reg)
	}
	return Resolution{}
}

// resolveInvitation trusts the tenant portion of a TENANT:CODE invitation
// only after the validator accepts it. Rejected or malformed codes resolve
// nothing; only a transient validation failure aborts the registration, so
// the provider's delivery retry can try again.
func (r *Resolver) resolveInvitation(ctx context.Context, reg Context) (Resolution, error) {
	if reg.InvitationCode == "" || r.invitations == nil {
		return Resolution{}, nil
	}
	tenantID, code, ok := strings.Cut(reg.InvitationCode, ":")
	if !ok || tenantID == "" || code == "" {
		log.Printf("tenant: malformed invitation code for subject %s", reg.SubjectID)
		return Resolution{}, nil
	}

	role, err := r.invitations.Validate(ctx, tenantID, code)
	if err != nil {
		if apperrors.CodeOf(err).Classify() == apperrors.ClassPolicy {
			log.Printf("tenant: invitation rejected for subject %s: %v", reg.SubjectID, err)
			return Resolution{}, nil
		}
		return Resolution{}, fmt.Errorf("validate invitation: %w", err)
	}
	if role == "" {
		role = store.RoleMember
	}
	return Resolution{Resolved: true, TenantID: tenantID, Role: role}, nil
}

func (r *Resolver) resolveStrict(reg Context) Resolution {
	var mapped string
	if domain, ok := EmailDomain(reg.Email); ok {
		mapped = r.cfg.DomainTenants[domain]
	}
	hint := strings.TrimSpace(reg.TenantHint)

	switch {
	case hint != "" && mapped != "" && hint != mapped:
		// Ambiguous: the hint contradicts the domain table.
		return Resolution{}
	case hint != "":
		return Resolution{Resolved: true, TenantID: hint, Role: store.RoleMember}
	case mapped != "":
		return Resolution{Resolved: true, TenantID: mapped, Role: store.RoleMember}
	default:
		return Resolution{}
	}
}

func personalResolution(reg Context) Resolution {
	return Resolution{Resolved: true, TenantID: PersonalTenantID(reg.SubjectID), Role: store.RoleAdmin}
}

// PersonalTenantID synthesizes a deterministic personal tenant id for a
// subject. Determinism keeps duplicate trigger deliveries from minting two
// different personal tenants for the same user.
func PersonalTenantID(subjectID string) string {
	sum := sha256.Sum256([]byte("personal-tenant:" + subjectID))
	return "personal-" + hex.EncodeToString(sum[:6])
}
