package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/louisbranch/identitymesh/internal/identity"
	apperrors "github.com/louisbranch/identitymesh/internal/platform/errors"
)

// Only signup confirmations link identities; password-reset confirmations
// reuse the same trigger and must pass through untouched.
const triggerSourceConfirmSignUp = "PostConfirmation_ConfirmSignUp"

// PostConfirmation handles the post-confirmation event: the confirmed user
// is linked to a canonical identity in the store. The event is always echoed
// back unchanged; the provider carries no created-id field in this contract.
type PostConfirmation struct {
	linker         *identity.Linker
	tenantHintAttr string
	invitationKey  string
}

// NewPostConfirmation creates the post-confirmation handler.
func NewPostConfirmation(linker *identity.Linker, cfg Config) *PostConfirmation {
	return &PostConfirmation{
		linker:         linker,
		tenantHintAttr: cfg.TenantHintAttribute,
		invitationKey:  cfg.InvitationMetadataKey,
	}
}

// Handle links the confirmed user. Policy rejections surface a public
// message; transient failures propagate raw so the provider's delivery
// retry re-runs the trigger.
func (h *PostConfirmation) Handle(ctx context.Context, event events.CognitoEventUserPoolsPostConfirmation) (_ events.CognitoEventUserPoolsPostConfirmation, err error) {
	ctx, span := startSpan(ctx, "postconfirmation", event.TriggerSource)
	defer func() { endSpan(span, err) }()

	if event.TriggerSource != triggerSourceConfirmSignUp {
		return event, nil
	}

	attrs := event.Request.UserAttributes
	prov, federated := parseIdentities(attrs["identities"])
	_, err = h.linker.Confirm(ctx, identity.ConfirmInput{
		UserPoolID:     event.UserPoolID,
		Username:       event.UserName,
		SubjectID:      attrs["sub"],
		Email:          attrs["email"],
		Provider:       prov,
		Federated:      federated,
		TenantHint:     attrs[h.tenantHintAttr],
		InvitationCode: event.Request.ClientMetadata[h.invitationKey],
	})
	if err != nil {
		code := apperrors.CodeOf(err)
		log.Printf("postconfirmation: confirm failed for user %s: %s: %v", event.UserName, code, err)
		if code.Classify() == apperrors.ClassPolicy {
			return event, errors.New(code.PublicMessage())
		}
		return event, err
	}
	return event, nil
}

// federatedRecord is one entry of the provider's identities attribute.
type federatedRecord struct {
	UserID       string      `json:"userId"`
	ProviderName string      `json:"providerName"`
	Issuer       string      `json:"issuer"`
	DateCreated  json.Number `json:"dateCreated"`
}

// parseIdentities extracts the federating provider from the identities user
// attribute, a JSON array present only on federated accounts. Any parse
// failure degrades to the default provider: a malformed attribute must never
// fail the confirmation.
func parseIdentities(raw string) (string, *identity.FederatedIdentity) {
	if raw == "" {
		return "", nil
	}
	var records []federatedRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil || len(records) == 0 {
		log.Printf("postconfirmation: unparseable identities attribute, treating as direct signup")
		return "", nil
	}
	rec := records[0]
	return strings.ToUpper(rec.ProviderName), &identity.FederatedIdentity{
		UserID:      rec.UserID,
		Issuer:      rec.Issuer,
		DateCreated: rec.DateCreated.String(),
	}
}
