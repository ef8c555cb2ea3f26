// Package claims assembles the identity claims injected into tokens at
// token-generation time. The package only reads; token issuance must never
// mutate identity state.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	apperrors "github.com/louisbranch/identitymesh/internal/platform/errors"
	"github.com/louisbranch/identitymesh/internal/store"
)

// Input is the token-generation context for one subject.
type Input struct {
	// SubjectID is the external subject from the event.
	SubjectID string
	// KnownUserID is the canonical id mirrored onto the provider's user
	// record, when the mirror has caught up. Empty means unknown.
	KnownUserID string
	// TenantHint optionally selects the active tenant among the user's
	// memberships.
	TenantHint string
}

// Claims is the enrichment result merged into the issued token.
type Claims struct {
	UserID            string
	TenantID          string
	Role              string
	MultiTenant       bool
	TenantCount       int
	PreferredLanguage string
}

// Enricher resolves token claims from the record store.
type Enricher struct {
	records store.Store
}

// NewEnricher creates a read-only claims enricher.
func NewEnricher(records store.Store) *Enricher {
	return &Enricher{records: records}
}

// Enrich assembles the claims for one subject. The canonical id comes from
// the mirrored attribute when present and from the subject index otherwise;
// a subject with no identity record at all is a consistency violation, since
// token generation only runs for confirmed users.
func (e *Enricher) Enrich(ctx context.Context, in Input) (Claims, error) {
	userID := in.KnownUserID
	if userID == "" {
		resolved, err := e.lookupUserID(ctx, in.SubjectID)
		if err != nil {
			return Claims{}, err
		}
		userID = resolved
	}

	memberships, err := e.lookupMemberships(ctx, userID)
	if err != nil {
		return Claims{}, err
	}

	claims := Claims{
		UserID:      userID,
		TenantCount: len(memberships),
		MultiTenant: len(memberships) > 1,
	}
	if active, ok := activeMembership(memberships, in.TenantHint); ok {
		claims.TenantID = active.TenantID
		claims.Role = active.Role
	}

	// Language is best-effort: a missing settings item falls back to no
	// language claim rather than failing token issuance.
	if lang, err := e.lookupLanguage(ctx, claims.TenantID, userID); err != nil {
		log.Printf("claims: settings lookup failed for user %s: %v", userID, err)
	} else {
		claims.PreferredLanguage = lang
	}

	return claims, nil
}

// lookupUserID resolves the canonical id through the subject index.
func (e *Enricher) lookupUserID(ctx context.Context, subjectID string) (string, error) {
	if subjectID == "" {
		return "", apperrors.New(apperrors.CodeSubjectMissing, "token event carries no external subject id")
	}
	var links []store.IdentityLink
	if err := e.records.QueryByIndex(ctx, store.IndexSubject, store.SubjectGSI2PK(subjectID), "", &links); err != nil {
		return "", fmt.Errorf("lookup identity by subject: %w", err)
	}
	if len(links) == 0 {
		return "", apperrors.WithMetadata(apperrors.CodeConsistencyViolation,
			"confirmed subject has no identity record",
			map[string]string{"subjectId": subjectID})
	}
	return links[0].UserID(), nil
}

func (e *Enricher) lookupMemberships(ctx context.Context, userID string) ([]store.TenantMembership, error) {
	var memberships []store.TenantMembership
	if err := e.records.QueryByIndex(ctx, store.IndexPrimary, store.UserPK(userID), store.SKPrefixTenant, &memberships); err != nil {
		return nil, fmt.Errorf("lookup memberships: %w", err)
	}
	return memberships, nil
}

// activeMembership picks the tenant whose context the token is issued in: a
// hint naming one of the user's memberships wins, otherwise the membership
// joined first. Ties on the join timestamp break on tenant id so repeated
// token generations pick the same tenant.
func activeMembership(memberships []store.TenantMembership, hint string) (store.TenantMembership, bool) {
	if len(memberships) == 0 {
		return store.TenantMembership{}, false
	}
	if hint != "" {
		for _, m := range memberships {
			if m.TenantID == hint {
				return m, true
			}
		}
	}
	sorted := make([]store.TenantMembership, len(memberships))
	copy(sorted, memberships)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].JoinedAt != sorted[j].JoinedAt {
			return sorted[i].JoinedAt < sorted[j].JoinedAt
		}
		return sorted[i].TenantID < sorted[j].TenantID
	})
	return sorted[0], true
}

// lookupLanguage reads the preferred language from the user's settings in
// the active tenant. Users without a resolved tenant keep their settings
// under the global user key.
func (e *Enricher) lookupLanguage(ctx context.Context, tenantID, userID string) (string, error) {
	var settings store.Settings
	key := store.Key{PK: store.TenantUserPK(tenantID, userID), SK: store.SKSettings}
	if err := e.records.GetItem(ctx, key, &settings); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return settings.Preferences.Language, nil
}
