// Package triggers maps the provider's user-pool events onto the identity
// components and shapes their results back into the event contract.
package triggers

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/identitymesh/internal/gate"
	"github.com/louisbranch/identitymesh/internal/provider"
	"github.com/louisbranch/identitymesh/internal/tenant"
)

// Config is the environment surface shared by the three trigger binaries.
// It is parsed once at process start and never mutated.
type Config struct {
	TableName string `env:"IDENTITYMESH_TABLE_NAME,required"`

	TenantStrategy       string   `env:"IDENTITYMESH_TENANT_STRATEGY" envDefault:"domain"`
	DomainTenantMap      string   `env:"IDENTITYMESH_DOMAIN_TENANT_MAP"`
	AllowedDomains       []string `env:"IDENTITYMESH_ALLOWED_DOMAINS"`
	AllowPersonalTenants bool     `env:"IDENTITYMESH_ALLOW_PERSONAL_TENANTS"`
	RequireTenant        bool     `env:"IDENTITYMESH_REQUIRE_TENANT"`

	AdminOnlyCreation bool `env:"IDENTITYMESH_ADMIN_ONLY_CREATION"`
	AutoConfirm       bool `env:"IDENTITYMESH_AUTO_CONFIRM"`
	AutoVerifyEmail   bool `env:"IDENTITYMESH_AUTO_VERIFY_EMAIL"`

	UserIDAttribute       string `env:"IDENTITYMESH_USER_ID_ATTRIBUTE" envDefault:"custom:user_id"`
	TenantHintAttribute   string `env:"IDENTITYMESH_TENANT_HINT_ATTRIBUTE" envDefault:"custom:tenant_id"`
	InvitationMetadataKey string `env:"IDENTITYMESH_INVITATION_METADATA_KEY" envDefault:"invitation_code"`
}

// TenantConfig builds the tenant-resolution policy. The domain map is a
// JSON object so tenant ids may contain the separators a flat list format
// would reserve.
func (c Config) TenantConfig() (tenant.Config, error) {
	strategy, err := tenant.ParseStrategy(c.TenantStrategy)
	if err != nil {
		return tenant.Config{}, err
	}
	var mapping map[string]string
	if c.DomainTenantMap != "" {
		if err := json.Unmarshal([]byte(c.DomainTenantMap), &mapping); err != nil {
			return tenant.Config{}, fmt.Errorf("parse domain tenant map: %w", err)
		}
	}
	return tenant.Config{
		Strategy:             strategy,
		DomainTenants:        mapping,
		AllowedDomains:       c.AllowedDomains,
		AllowPersonalTenants: c.AllowPersonalTenants,
		RequireTenant:        c.RequireTenant,
	}, nil
}

// GateConfig builds the pre-signup admission policy. The allow-list is the
// same one tenant resolution enforces, evaluated earlier for faster feedback.
func (c Config) GateConfig() (gate.Config, error) {
	tenantCfg, err := c.TenantConfig()
	if err != nil {
		return gate.Config{}, err
	}
	return gate.Config{
		AdminOnly: c.AdminOnlyCreation,
		Domains:   tenantCfg,
	}, nil
}

// MirrorAttribute returns the configured user-id mirror attribute name.
func (c Config) MirrorAttribute() string {
	if c.UserIDAttribute == "" {
		return provider.DefaultUserIDAttribute
	}
	return c.UserIDAttribute
}
