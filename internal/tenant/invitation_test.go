package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/identitymesh/internal/store"
	"github.com/louisbranch/identitymesh/internal/store/memory"
)

func TestStoreValidator(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	records := memory.New()
	seed := store.Invitation{
		PK:         store.TenantPK("acme"),
		SK:         store.InviteSK("CODE123"),
		EntityType: store.EntityInvite,
		TenantID:   "acme",
		Code:       "CODE123",
		Role:       "admin",
		CreatedAt:  store.FormatTime(now.Add(-time.Hour)),
		ExpiresAt:  store.FormatTime(now.Add(time.Hour)),
	}
	if err := records.Seed(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	v := NewStoreValidator(records, func() time.Time { return now })

	role, err := v.Validate(context.Background(), "acme", "CODE123")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if role != "admin" {
		t.Fatalf("role = %q", role)
	}

	if _, err := v.Validate(context.Background(), "acme", "WRONG"); !errors.Is(err, ErrInvitationInvalid) {
		t.Fatalf("expected ErrInvitationInvalid, got %v", err)
	}
	if _, err := v.Validate(context.Background(), "other", "CODE123"); !errors.Is(err, ErrInvitationInvalid) {
		t.Fatalf("expected ErrInvitationInvalid for wrong tenant, got %v", err)
	}

	expired := NewStoreValidator(records, func() time.Time { return now.Add(2 * time.Hour) })
	if _, err := expired.Validate(context.Background(), "acme", "CODE123"); !errors.Is(err, ErrInvitationExpired) {
		t.Fatalf("expected ErrInvitationExpired, got %v", err)
	}
}
