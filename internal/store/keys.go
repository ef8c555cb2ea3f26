package store

import (
	"fmt"
	"strings"
)

// Sort key literals and prefixes for the single-table layout.
const (
	SKProfile        = "PROFILE"
	SKSettings       = "SETTINGS"
	SKClaim          = "CLAIM"
	SKPrefixIdentity = "IDENTITY#"
	SKPrefixTenant   = "TENANT#"
	SKPrefixGroup    = "GROUP#"
	SKPrefixInvite   = "INVITE#"
)

// UserPK keys items that belong globally to one canonical user.
func UserPK(userID string) string { return fmt.Sprintf("USER#%s", userID) }

// TenantUserPK keys items scoped to one user within one tenant. When the
// tenant is unresolved (single-tenant mode) it degrades to the global key.
func TenantUserPK(tenantID, userID string) string {
	if tenantID == "" {
		return UserPK(userID)
	}
	return fmt.Sprintf("TENANT#%s#USER#%s", tenantID, userID)
}

// TenantPK keys items that belong to a tenant itself.
func TenantPK(tenantID string) string { return fmt.Sprintf("TENANT#%s", tenantID) }

// IdentitySK keys one provider credential under a user.
func IdentitySK(provider string) string { return SKPrefixIdentity + provider }

// TenantSK keys one tenant membership under a user.
func TenantSK(tenantID string) string { return SKPrefixTenant + tenantID }

// GroupSK keys one group membership under a tenant-scoped user.
func GroupSK(group string) string { return SKPrefixGroup + group }

// InviteSK keys one invitation code under a tenant.
func InviteSK(code string) string { return SKPrefixInvite + code }

// EmailGSI1PK projects a profile under its case-folded email (GSI1).
func EmailGSI1PK(email string) string {
	return fmt.Sprintf("EMAIL#%s", NormalizeEmail(email))
}

// SubjectGSI2PK projects an identity link under its external subject (GSI2).
func SubjectGSI2PK(subjectID string) string { return fmt.Sprintf("IDENT#%s", subjectID) }

// TenantGSI3PK projects a membership under its tenant (GSI3).
func TenantGSI3PK(tenantID string) string { return fmt.Sprintf("TENANT#%s", tenantID) }

// GroupGSI4PK projects a group membership under its tenant and group (GSI4).
func GroupGSI4PK(tenantID, group string) string {
	return fmt.Sprintf("TENANT#%s#GROUP#%s", tenantID, group)
}

// NormalizeEmail case-folds an email address. Every path that uses an email
// as a lookup key must go through this, or the GSI1 projection and the
// lookups against it drift apart.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserIDFromKey extracts the canonical user id from a USER#-prefixed key
// value, such as a GSI2SK projection.
func UserIDFromKey(value string) string {
	return strings.TrimPrefix(value, "USER#")
}
