package tenant

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/louisbranch/identitymesh/internal/platform/errors"
	"github.com/louisbranch/identitymesh/internal/store"
)

// ErrInvitationInvalid indicates the code matches no invitation record.
var ErrInvitationInvalid = apperrors.New(apperrors.CodeInvitationInvalid, "invitation not found")

// ErrInvitationExpired indicates the invitation exists but is past expiry.
var ErrInvitationExpired = apperrors.New(apperrors.CodeInvitationExpired, "invitation expired")

// StoreValidator validates invitation codes against INVITE records in the
// shared table. Invitation issuance belongs to an administrative path; the
// engine only reads.
type StoreValidator struct {
	records store.Store
	clock   func() time.Time
}

var _ InvitationValidator = (*StoreValidator)(nil)

// NewStoreValidator creates a validator reading from the given record store.
func NewStoreValidator(records store.Store, clock func() time.Time) *StoreValidator {
	if clock == nil {
		clock = time.Now
	}
	return &StoreValidator{records: records, clock: clock}
}

// Validate checks that an invitation record exists for (tenantID, code) and
// has not expired, returning the role it grants.
func (v *StoreValidator) Validate(ctx context.Context, tenantID, code string) (string, error) {
	var invitation store.Invitation
	err := v.records.GetItem(ctx, store.InvitationKey(tenantID, code), &invitation)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvitationInvalid
		}
		return "", err
	}
	if invitation.Expired(v.clock()) {
		return "", ErrInvitationExpired
	}
	return invitation.Role, nil
}
