package triggers

import (
	"context"
	"log"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"github.com/louisbranch/identitymesh/internal/claims"
	apperrors "github.com/louisbranch/identitymesh/internal/platform/errors"
)

// Token trigger sources that are not plain password authentication.
const (
	triggerSourceHostedAuth    = "TokenGeneration_HostedAuth"
	triggerSourceRefreshTokens = "TokenGeneration_RefreshTokens"
)

// tenantHintMetadataKey lets a refresh request select a different tenant
// context than the one stored on the user.
const tenantHintMetadataKey = "tenant_hint"

// PreTokenGen handles the pre-token-generation event: claims resolved from
// the store are merged into the token about to be issued.
type PreTokenGen struct {
	enricher       *claims.Enricher
	userIDAttr     string
	tenantHintAttr string
}

// NewPreTokenGen creates the pre-token-generation handler.
func NewPreTokenGen(enricher *claims.Enricher, cfg Config) *PreTokenGen {
	return &PreTokenGen{
		enricher:       enricher,
		userIDAttr:     cfg.MirrorAttribute(),
		tenantHintAttr: cfg.TenantHintAttribute,
	}
}

// Handle merges the enriched claim set into the response override. A subject
// with no identity record fails the issuance: minting a token without a
// canonical id would paper over a skipped linking step.
func (h *PreTokenGen) Handle(ctx context.Context, event events.CognitoEventUserPoolsPreTokenGen) (_ events.CognitoEventUserPoolsPreTokenGen, err error) {
	ctx, span := startSpan(ctx, "pretokengen", event.TriggerSource)
	defer func() { endSpan(span, err) }()

	attrs := event.Request.UserAttributes
	hint := attrs[h.tenantHintAttr]
	if md := event.Request.ClientMetadata[tenantHintMetadataKey]; md != "" {
		hint = md
	}

	enriched, err := h.enricher.Enrich(ctx, claims.Input{
		SubjectID:   attrs["sub"],
		KnownUserID: attrs[h.userIDAttr],
		TenantHint:  hint,
	})
	if err != nil {
		log.Printf("pretokengen: enrichment failed for user %s: %s: %v",
			event.UserName, apperrors.CodeOf(err), err)
		return event, err
	}

	// Claims carry clean names; the custom:-prefixed attribute names exist
	// only on the pool user record and are not echoed into the token.
	add := map[string]string{
		"user_id":      enriched.UserID,
		"multi_tenant": strconv.FormatBool(enriched.MultiTenant),
		"tenant_count": strconv.Itoa(enriched.TenantCount),
		"auth_type":    authType(event.TriggerSource),
	}
	if enriched.TenantID != "" {
		add["tenant_id"] = enriched.TenantID
		add["tenant_role"] = enriched.Role
	}
	if enriched.PreferredLanguage != "" {
		add["preferred_language"] = enriched.PreferredLanguage
	}

	override := &event.Response.ClaimsOverrideDetails
	if override.ClaimsToAddOrOverride == nil {
		override.ClaimsToAddOrOverride = make(map[string]string, len(add))
	}
	for name, value := range add {
		override.ClaimsToAddOrOverride[name] = value
	}
	return event, nil
}

// authType classifies how the session was established.
func authType(triggerSource string) string {
	switch triggerSource {
	case triggerSourceHostedAuth:
		return "federated"
	case triggerSourceRefreshTokens:
		return "refresh"
	default:
		return "password"
	}
}
