// Package identity orchestrates the post-confirmation flow: resolve the
// tenant, find or create the canonical user, and bind the external
// credential to it, all under at-least-once event delivery.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/louisbranch/identitymesh/internal/platform/errors"
	"github.com/louisbranch/identitymesh/internal/platform/id"
	"github.com/louisbranch/identitymesh/internal/store"
	"github.com/louisbranch/identitymesh/internal/tenant"
)

// ProviderDefault names credentials held directly by the authentication
// provider, as opposed to federated social logins.
const ProviderDefault = "COGNITO"

// maxConflictRetries bounds how many times a lost conditional race is
// re-read before the conflict is surfaced to the delivery layer.
const maxConflictRetries = 2

// AttributeSyncer mirrors the canonical user id back onto the provider's
// user record so provider-side lookups carry it. The mirror is advisory:
// the table remains the source of truth.
type AttributeSyncer interface {
	SyncUserID(ctx context.Context, userPoolID, username, userID string) error
}

// FederatedIdentity carries federation details parsed from the provider's
// identities attribute.
type FederatedIdentity struct {
	UserID      string
	Issuer      string
	DateCreated string
}

// ConfirmInput is the registration context of one confirmation event.
type ConfirmInput struct {
	UserPoolID     string
	Username       string
	SubjectID      string
	Email          string
	Provider       string
	Federated      *FederatedIdentity
	TenantHint     string
	InvitationCode string
}

// Outcome describes how a confirmation converged.
type Outcome string

const (
	// OutcomeAlreadyLinked means the subject was already bound to a
	// canonical user; the event was a retry or a repeat login.
	OutcomeAlreadyLinked Outcome = "already_linked"
	// OutcomeLinkedExisting means a new login method was bound to a user
	// previously known by email.
	OutcomeLinkedExisting Outcome = "linked_existing"
	// OutcomeCreated means a brand-new canonical user was minted.
	OutcomeCreated Outcome = "created"
)

// ConfirmResult reports the converged identity state.
type ConfirmResult struct {
	UserID   string
	TenantID string
	Outcome  Outcome
}

// Linker executes the post-confirmation state machine against the record
// store. Cross-invocation consistency comes entirely from conditional
// writes; the linker holds no state between calls.
type Linker struct {
	records store.Store
	tenants *tenant.Resolver
	mirror  AttributeSyncer
	clock   func() time.Time
	newID   func() (string, error)
}

// NewLinker creates a linker. The mirror may be nil, in which case no
// provider-side attribute sync is attempted.
func NewLinker(records store.Store, tenants *tenant.Resolver, mirror AttributeSyncer) *Linker {
	return &Linker{
		records: records,
		tenants: tenants,
		mirror:  mirror,
		clock:   time.Now,
		newID:   id.NewID,
	}
}

// Confirm resolves the tenant for the registration context, then converges
// the store onto a state where exactly one canonical user owns the event's
// external subject. Safe under duplicate delivery and under concurrent
// confirmations for the same subject: the loser of the conditional race
// re-reads and converges on the winner's records.
func (l *Linker) Confirm(ctx context.Context, in ConfirmInput) (ConfirmResult, error) {
	if in.SubjectID == "" {
		return ConfirmResult{}, apperrors.New(apperrors.CodeSubjectMissing, "confirmation event carries no external subject id")
	}
	if in.Provider == "" {
		in.Provider = ProviderDefault
	}

	resolution, err := l.tenants.Resolve(ctx, tenant.Context{
		SubjectID:      in.SubjectID,
		Email:          in.Email,
		TenantHint:     in.TenantHint,
		InvitationCode: in.InvitationCode,
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	var result ConfirmResult
	for attempt := 0; ; attempt++ {
		result, err = l.converge(ctx, in, resolution)
		if err == nil {
			break
		}
		if apperrors.CodeOf(err) != apperrors.CodeConflictRetryable || attempt >= maxConflictRetries {
			return ConfirmResult{}, err
		}
		log.Printf("identity: lost confirmation race for subject %s, re-reading (attempt %d)", in.SubjectID, attempt+1)
	}

	log.Printf("identity: confirmation for subject %s converged as %s (user %s, tenant %q)",
		in.SubjectID, result.Outcome, result.UserID, result.TenantID)
	l.syncAttribute(ctx, in, result.UserID)
	return result, nil
}

// converge runs one pass of the lookup/link/create ladder. A conflict error
// means a concurrent execution changed the store under us; the caller
// re-reads by running another pass.
func (l *Linker) converge(ctx context.Context, in ConfirmInput, resolution tenant.Resolution) (ConfirmResult, error) {
	// A subject already claimed makes the event a retry: idempotent
	// success, no further writes except tenant convergence.
	claim, err := l.lookupBySubject(ctx, in.SubjectID)
	if err == nil {
		if err := l.ensureTenantRecords(ctx, resolution, claim.UserID, in.Email); err != nil {
			return ConfirmResult{}, err
		}
		return ConfirmResult{UserID: claim.UserID, TenantID: resolution.TenantID, Outcome: OutcomeAlreadyLinked}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return ConfirmResult{}, err
	}

	// The email may belong to a user who registered through another login
	// method; if so the new credential is linked to that canonical user
	// and no new id is minted.
	if in.Email != "" {
		profile, err := l.lookupByEmail(ctx, in.Email, resolution.TenantID)
		if err == nil {
			return l.linkExisting(ctx, in, resolution, profile.UserID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return ConfirmResult{}, err
		}
	}

	return l.createNew(ctx, in, resolution)
}

// lookupBySubject reads the subject's guard item directly by key. Unlike
// the GSI2 projection this read is strongly consistent, so a loser re-read
// immediately sees the winner's claim.
func (l *Linker) lookupBySubject(ctx context.Context, subjectID string) (store.SubjectClaim, error) {
	var claim store.SubjectClaim
	if err := l.records.GetItem(ctx, store.SubjectClaimKey(subjectID), &claim); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.SubjectClaim{}, store.ErrNotFound
		}
		return store.SubjectClaim{}, fmt.Errorf("lookup subject claim: %w", err)
	}
	return claim, nil
}

func (l *Linker) lookupByEmail(ctx context.Context, email, tenantID string) (store.Profile, error) {
	var profiles []store.Profile
	if err := l.records.QueryByIndex(ctx, store.IndexEmail, store.EmailGSI1PK(email), "", &profiles); err != nil {
		return store.Profile{}, fmt.Errorf("lookup profile by email: %w", err)
	}
	// Only a profile in the resolved tenant context counts; the same email
	// in another tenant is a different registration.
	for _, p := range profiles {
		if p.TenantID == tenantID {
			return p, nil
		}
	}
	return store.Profile{}, store.ErrNotFound
}

// linkExisting adds the event's credential to an already-known canonical
// user. The put is conditioned on the per-provider identity slot being
// empty, which both guards duplicate deliveries and enforces at most one
// credential per provider per user.
func (l *Linker) linkExisting(ctx context.Context, in ConfirmInput, resolution tenant.Resolution, userID string) (ConfirmResult, error) {
	now := l.clock()
	ops := []store.WriteOp{
		{Item: store.NewSubjectClaim(in.SubjectID, userID, in.Provider, now), Condition: store.ConditionPKAbsent},
		{Item: l.buildLink(in, userID), Condition: store.ConditionSKAbsent},
	}
	if err := l.records.TransactWrite(ctx, ops); err != nil {
		if errors.Is(err, store.ErrTransactionConflict) {
			return ConfirmResult{}, l.classifyLinkConflict(ctx, in, userID, err)
		}
		return ConfirmResult{}, err
	}
	if err := l.ensureTenantRecords(ctx, resolution, userID, in.Email); err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{UserID: userID, TenantID: resolution.TenantID, Outcome: OutcomeLinkedExisting}, nil
}

// classifyLinkConflict decides whether a lost linkExisting transaction can
// converge. A conflict on the subject claim is a concurrent delivery of the
// same event and a re-read finds the winner. A conflict on the per-provider
// identity slot held by a different subject is permanent: the provider
// minted a new subject for an email whose owner already holds a credential
// from that provider (account deleted pool-side and signed up again), and no
// number of re-reads changes it, so it must not surface as retryable.
func (l *Linker) classifyLinkConflict(ctx context.Context, in ConfirmInput, userID string, conflict error) error {
	var existing store.IdentityLink
	err := l.records.GetItem(ctx, store.Key{PK: store.UserPK(userID), SK: store.IdentitySK(in.Provider)}, &existing)
	if errors.Is(err, store.ErrNotFound) {
		return conflict
	}
	if err != nil {
		return fmt.Errorf("re-read identity slot: %w", err)
	}
	if existing.ProviderSub != in.SubjectID {
		return apperrors.WithMetadata(apperrors.CodeCredentialConflict,
			"email owner already holds a credential from this provider under another subject",
			map[string]string{"provider": in.Provider, "userId": userID})
	}
	return conflict
}

// createNew mints a canonical id and writes the subject claim, profile,
// identity, settings, and membership as one transaction. Exactly one of any
// number of concurrent first confirmations for a subject commits; the
// losers converge via re-read.
func (l *Linker) createNew(ctx context.Context, in ConfirmInput, resolution tenant.Resolution) (ConfirmResult, error) {
	userID, err := l.newID()
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("mint canonical id: %w", err)
	}
	now := l.clock()

	// The claim's condition is the race guard: its key derives from the
	// subject, not from the minted id, so two concurrent first
	// confirmations for one subject collide no matter which ids they chose.
	ops := []store.WriteOp{
		{Item: store.NewSubjectClaim(in.SubjectID, userID, in.Provider, now), Condition: store.ConditionPKAbsent},
		{Item: l.buildLink(in, userID), Condition: store.ConditionSKAbsent},
		{Item: store.NewProfile(resolution.TenantID, userID, in.Email, now), Condition: store.ConditionPKAbsent},
		{Item: store.NewSettings(resolution.TenantID, userID, now), Condition: store.ConditionPKAbsent},
	}
	if resolution.Resolved {
		ops = append(ops, store.WriteOp{
			Item:      store.NewTenantMembership(resolution.TenantID, userID, resolution.Role, now),
			Condition: store.ConditionSKAbsent,
		})
	}

	if err := l.records.TransactWrite(ctx, ops); err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{UserID: userID, TenantID: resolution.TenantID, Outcome: OutcomeCreated}, nil
}

// ensureTenantRecords converges membership for an already-known user: when
// the resolved tenant has no membership yet (the same canonical user being
// added to another tenant), profile, settings, and membership are created
// under the same invariants as first registration.
func (l *Linker) ensureTenantRecords(ctx context.Context, resolution tenant.Resolution, userID, email string) error {
	if !resolution.Resolved {
		return nil
	}

	var membership store.TenantMembership
	err := l.records.GetItem(ctx, store.Key{PK: store.UserPK(userID), SK: store.TenantSK(resolution.TenantID)}, &membership)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check membership: %w", err)
	}

	now := l.clock()
	ops := []store.WriteOp{
		{Item: store.NewTenantMembership(resolution.TenantID, userID, resolution.Role, now), Condition: store.ConditionSKAbsent},
		{Item: store.NewProfile(resolution.TenantID, userID, email, now), Condition: store.ConditionPKAbsent},
		{Item: store.NewSettings(resolution.TenantID, userID, now), Condition: store.ConditionPKAbsent},
	}
	if err := l.records.TransactWrite(ctx, ops); err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeConflictRetryable {
			// A concurrent execution created the membership first.
			return nil
		}
		return fmt.Errorf("create tenant records: %w", err)
	}
	return nil
}

// AddToGroup records a group membership for a tenant-scoped user. Repeat
// calls are idempotent.
func (l *Linker) AddToGroup(ctx context.Context, tenantID, userID, group string) error {
	m := store.NewGroupMembership(tenantID, userID, group, l.clock())
	if err := l.records.PutItemIfAbsent(ctx, m, store.ConditionSKAbsent); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("add group membership: %w", err)
	}
	return nil
}

func (l *Linker) buildLink(in ConfirmInput, userID string) store.IdentityLink {
	link := store.NewIdentityLink(userID, in.Provider, in.SubjectID, in.Username, l.clock())
	if in.Federated != nil {
		link.FederatedUserID = in.Federated.UserID
		link.FederatedIssuer = in.Federated.Issuer
		link.FederatedDateCreated = in.Federated.DateCreated
	}
	return link
}

// syncAttribute mirrors the canonical id onto the provider's user record.
// Failure is logged and left to the next confirmation or an operator; the
// durable writes above are never rolled back for the mirror.
func (l *Linker) syncAttribute(ctx context.Context, in ConfirmInput, userID string) {
	if l.mirror == nil {
		return
	}
	if err := l.mirror.SyncUserID(ctx, in.UserPoolID, in.Username, userID); err != nil {
		log.Printf("identity: attribute sync failed for user %s: %v", userID, err)
	}
}
