package triggers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/louisbranch/identitymesh/internal/claims"
	"github.com/louisbranch/identitymesh/internal/gate"
	"github.com/louisbranch/identitymesh/internal/identity"
	"github.com/louisbranch/identitymesh/internal/store"
	"github.com/louisbranch/identitymesh/internal/store/memory"
	"github.com/louisbranch/identitymesh/internal/tenant"
)

func testConfig() Config {
	return Config{
		TableName:             "identity",
		TenantStrategy:        "domain",
		DomainTenantMap:       `{"acme.com":"acme"}`,
		UserIDAttribute:       "custom:user_id",
		TenantHintAttribute:   "custom:tenant_id",
		InvitationMetadataKey: "invitation_code",
	}
}

func TestConfigTenantConfig(t *testing.T) {
	cfg := testConfig()
	tenantCfg, err := cfg.TenantConfig()
	if err != nil {
		t.Fatalf("tenant config: %v", err)
	}
	if tenantCfg.Strategy != tenant.StrategyDomain {
		t.Fatalf("strategy = %q", tenantCfg.Strategy)
	}
	if tenantCfg.DomainTenants["acme.com"] != "acme" {
		t.Fatalf("mapping = %+v", tenantCfg.DomainTenants)
	}

	cfg.DomainTenantMap = "{not json"
	if _, err := cfg.TenantConfig(); err == nil {
		t.Fatal("expected error for malformed map")
	}
	cfg = testConfig()
	cfg.TenantStrategy = "majority-vote"
	if _, err := cfg.TenantConfig(); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func newLinkerForTest(records *memory.Store, cfg Config) *identity.Linker {
	tenantCfg, err := cfg.TenantConfig()
	if err != nil {
		panic(err)
	}
	return identity.NewLinker(records, tenant.NewResolver(tenantCfg, tenant.NewStoreValidator(records, nil)), nil)
}

func TestPreSignupAllowAndFlags(t *testing.T) {
	cfg := testConfig()
	cfg.AutoConfirm = true
	cfg.AutoVerifyEmail = true
	gateCfg, err := cfg.GateConfig()
	if err != nil {
		t.Fatalf("gate config: %v", err)
	}
	h := NewPreSignup(gate.New(gateCfg), cfg)

	event := events.CognitoEventUserPoolsPreSignup{}
	event.UserName = "bob"
	event.TriggerSource = "PreSignUp_SignUp"
	event.Request.UserAttributes = map[string]string{"email": "bob@acme.com"}

	out, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !out.Response.AutoConfirmUser || !out.Response.AutoVerifyEmail {
		t.Fatalf("response = %+v", out.Response)
	}

	// No email means nothing to auto-verify.
	event.Request.UserAttributes = map[string]string{}
	out, err = h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("handle without email: %v", err)
	}
	if out.Response.AutoVerifyEmail {
		t.Fatal("auto-verify set without an email")
	}
}

func TestPreSignupDeny(t *testing.T) {
	cfg := testConfig()
	cfg.AdminOnlyCreation = true
	gateCfg, err := cfg.GateConfig()
	if err != nil {
		t.Fatalf("gate config: %v", err)
	}
	h := NewPreSignup(gate.New(gateCfg), cfg)

	event := events.CognitoEventUserPoolsPreSignup{}
	event.TriggerSource = "PreSignUp_SignUp"
	event.Request.UserAttributes = map[string]string{"email": "bob@acme.com"}

	_, err = h.Handle(context.Background(), event)
	if err == nil {
		t.Fatal("expected denial")
	}
	// The denial message is shown to the person signing up and must not
	// leak internals.
	if !strings.Contains(err.Error(), "administrator") {
		t.Fatalf("message = %q", err.Error())
	}

	event.TriggerSource = triggerSourceAdminCreate
	if _, err := h.Handle(context.Background(), event); err != nil {
		t.Fatalf("admin-created user denied: %v", err)
	}
}

func TestPostConfirmationLinks(t *testing.T) {
	records := memory.New()
	cfg := testConfig()
	h := NewPostConfirmation(newLinkerForTest(records, cfg), cfg)

	event := events.CognitoEventUserPoolsPostConfirmation{}
	event.UserPoolID = "pool-1"
	event.UserName = "bob"
	event.TriggerSource = triggerSourceConfirmSignUp
	event.Request.UserAttributes = map[string]string{
		"sub":   "sub-1",
		"email": "bob@acme.com",
	}

	out, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.UserPoolID != event.UserPoolID || out.UserName != event.UserName {
		t.Fatalf("event not echoed: %+v", out)
	}
	if records.Len() != 5 {
		t.Fatalf("expected 5 items, got %d", records.Len())
	}

	var links []store.IdentityLink
	if err := records.QueryByIndex(context.Background(), store.IndexSubject, store.SubjectGSI2PK("sub-1"), "", &links); err != nil {
		t.Fatalf("query links: %v", err)
	}
	if len(links) != 1 || links[0].Provider != identity.ProviderDefault {
		t.Fatalf("links = %+v", links)
	}
}

func TestPostConfirmationFederated(t *testing.T) {
	records := memory.New()
	cfg := testConfig()
	h := NewPostConfirmation(newLinkerForTest(records, cfg), cfg)

	event := events.CognitoEventUserPoolsPostConfirmation{}
	event.TriggerSource = triggerSourceConfirmSignUp
	event.UserName = "google_12345"
	event.Request.UserAttributes = map[string]string{
		"sub":        "sub-g",
		"email":      "ann@acme.com",
		"identities": `[{"userId":"12345","providerName":"Google","providerType":"Google","issuer":null,"primary":true,"dateCreated":1612345678}]`,
	}

	if _, err := h.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var links []store.IdentityLink
	if err := records.QueryByIndex(context.Background(), store.IndexSubject, store.SubjectGSI2PK("sub-g"), "", &links); err != nil {
		t.Fatalf("query links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %+v", links)
	}
	link := links[0]
	if link.Provider != "GOOGLE" || link.FederatedUserID != "12345" || link.FederatedDateCreated != "1612345678" {
		t.Fatalf("link = %+v", link)
	}
}

func TestPostConfirmationIgnoresOtherSources(t *testing.T) {
	records := memory.New()
	cfg := testConfig()
	h := NewPostConfirmation(newLinkerForTest(records, cfg), cfg)

	event := events.CognitoEventUserPoolsPostConfirmation{}
	event.TriggerSource = "PostConfirmation_ConfirmForgotPassword"
	event.Request.UserAttributes = map[string]string{"sub": "sub-1", "email": "bob@acme.com"}

	if _, err := h.Handle(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if records.Len() != 0 {
		t.Fatalf("password reset must not write, found %d items", records.Len())
	}
}

func TestPostConfirmationMalformedIdentities(t *testing.T) {
	records := memory.New()
	cfg := testConfig()
	h := NewPostConfirmation(newLinkerForTest(records, cfg), cfg)

	event := events.CognitoEventUserPoolsPostConfirmation{}
	event.TriggerSource = triggerSourceConfirmSignUp
	event.Request.UserAttributes = map[string]string{
		"sub":        "sub-1",
		"email":      "bob@acme.com",
		"identities": "{broken",
	}

	if _, err := h.Handle(context.Background(), event); err != nil {
		t.Fatalf("malformed identities must degrade, got %v", err)
	}

	var links []store.IdentityLink
	if err := records.QueryByIndex(context.Background(), store.IndexSubject, store.SubjectGSI2PK("sub-1"), "", &links); err != nil {
		t.Fatalf("query links: %v", err)
	}
	if len(links) != 1 || links[0].Provider != identity.ProviderDefault {
		t.Fatalf("links = %+v", links)
	}
}

func TestPostConfirmationPolicyDenial(t *testing.T) {
	records := memory.New()
	cfg := testConfig()
	cfg.RequireTenant = true
	h := NewPostConfirmation(newLinkerForTest(records, cfg), cfg)

	event := events.CognitoEventUserPoolsPostConfirmation{}
	event.TriggerSource = triggerSourceConfirmSignUp
	event.Request.UserAttributes = map[string]string{"sub": "sub-1", "email": "bob@unmapped.com"}

	_, err := h.Handle(context.Background(), event)
	if err == nil {
		t.Fatal("expected denial")
	}
	if !strings.Contains(err.Error(), "organization") {
		t.Fatalf("message = %q", err.Error())
	}
	if records.Len() != 0 {
		t.Fatalf("denied confirmation wrote %d items", records.Len())
	}
}

func TestPreTokenGenClaims(t *testing.T) {
	records := memory.New()
	cfg := testConfig()

	linker := newLinkerForTest(records, cfg)
	result, err := linker.Confirm(context.Background(), identity.ConfirmInput{
		UserPoolID: "pool-1",
		Username:   "bob",
		SubjectID:  "sub-1",
		Email:      "bob@acme.com",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	h := NewPreTokenGen(claims.NewEnricher(records), cfg)
	event := events.CognitoEventUserPoolsPreTokenGen{}
	event.UserName = "bob"
	event.TriggerSource = "TokenGeneration_Authentication"
	event.Request.UserAttributes = map[string]string{"sub": "sub-1"}

	out, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := out.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride
	want := map[string]string{
		"user_id":            result.UserID,
		"tenant_id":          "acme",
		"tenant_role":        store.RoleMember,
		"multi_tenant":       "false",
		"tenant_count":       "1",
		"auth_type":          "password",
		"preferred_language": "en",
	}
	for name, value := range want {
		if got[name] != value {
			t.Fatalf("claim %q = %q, want %q (all: %v)", name, got[name], value, got)
		}
	}
}

func TestPreTokenGenAuthType(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"TokenGeneration_Authentication", "password"},
		{"TokenGeneration_HostedAuth", "federated"},
		{"TokenGeneration_RefreshTokens", "refresh"},
		{"TokenGeneration_NewPasswordChallenge", "password"},
	}
	for _, tt := range tests {
		if got := authType(tt.source); got != tt.want {
			t.Fatalf("authType(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestPreTokenGenUnknownSubjectFails(t *testing.T) {
	cfg := testConfig()
	h := NewPreTokenGen(claims.NewEnricher(memory.New()), cfg)

	event := events.CognitoEventUserPoolsPreTokenGen{}
	event.TriggerSource = "TokenGeneration_Authentication"
	event.Request.UserAttributes = map[string]string{"sub": "sub-ghost"}

	if _, err := h.Handle(context.Background(), event); err == nil {
		t.Fatal("expected consistency failure for unknown subject")
	}
}

func TestPreTokenGenTenantHint(t *testing.T) {
	records := memory.New()
	cfg := testConfig()

	linker := newLinkerForTest(records, cfg)
	result, err := linker.Confirm(context.Background(), identity.ConfirmInput{
		SubjectID: "sub-1",
		Email:     "bob@acme.com",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := records.Seed(store.NewTenantMembership("beta", result.UserID, store.RoleAdmin, time.Now())); err != nil {
		t.Fatalf("seed membership: %v", err)
	}

	h := NewPreTokenGen(claims.NewEnricher(records), cfg)
	event := events.CognitoEventUserPoolsPreTokenGen{}
	event.TriggerSource = triggerSourceRefreshTokens
	event.Request.UserAttributes = map[string]string{"sub": "sub-1"}
	event.Request.ClientMetadata = map[string]string{"tenant_hint": "beta"}

	out, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := out.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride
	if got["tenant_id"] != "beta" || got["tenant_role"] != store.RoleAdmin {
		t.Fatalf("claims = %v", got)
	}
	if got["multi_tenant"] != "true" || got["tenant_count"] != "2" {
		t.Fatalf("claims = %v", got)
	}
	if got["auth_type"] != "refresh" {
		t.Fatalf("auth_type = %q", got["auth_type"])
	}
}
