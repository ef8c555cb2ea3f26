package store

import "time"

// entityType discriminator values.
const (
	EntityUser             = "USER"
	EntityIdentity         = "IDENTITY"
	EntityIdentityClaim    = "IDENTITY_CLAIM"
	EntitySettings         = "SETTINGS"
	EntityTenantMembership = "TENANT_MEMBERSHIP"
	EntityGroupMembership  = "GROUP_MEMBERSHIP"
	EntityInvite           = "INVITE"
)

// Profile status values.
const (
	StatusActive = "ACTIVE"
)

// Membership roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// FormatTime renders a timestamp the way every item attribute stores it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Profile is the canonical person record: exactly one per (tenant, user)
// pair, and the only item projected into the email index.
type Profile struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	UserID     string `dynamodbav:"userId"`
	TenantID   string `dynamodbav:"tenantId,omitempty"`
	Email      string `dynamodbav:"email,omitempty"`
	Status     string `dynamodbav:"status"`
	CreatedAt  string `dynamodbav:"createdAt"`
	UpdatedAt  string `dynamodbav:"updatedAt"`
	GSI1PK     string `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK     string `dynamodbav:"GSI1SK,omitempty"`
}

// NewProfile builds a profile item with its email projection. An empty email
// (phone-only signup) writes no GSI1 projection: such users are reachable
// only through their external subject id.
func NewProfile(tenantID, userID, email string, now time.Time) Profile {
	p := Profile{
		PK:         TenantUserPK(tenantID, userID),
		SK:         SKProfile,
		EntityType: EntityUser,
		UserID:     userID,
		TenantID:   tenantID,
		Status:     StatusActive,
		CreatedAt:  FormatTime(now),
		UpdatedAt:  FormatTime(now),
	}
	if email != "" {
		p.Email = NormalizeEmail(email)
		p.GSI1PK = EmailGSI1PK(email)
		p.GSI1SK = UserPK(userID)
	}
	return p
}

// Key returns the primary key of the profile item.
func (p Profile) Key() Key { return Key{PK: p.PK, SK: p.SK} }

// IdentityLink binds one external-provider credential to a canonical user.
// The GSI2 projection answers "which canonical user owns this subject".
type IdentityLink struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"entityType"`
	Provider    string `dynamodbav:"provider"`
	ProviderSub string `dynamodbav:"providerSub"`
	Username    string `dynamodbav:"username,omitempty"`
	CreatedAt   string `dynamodbav:"createdAt"`
	GSI2PK      string `dynamodbav:"GSI2PK"`
	GSI2SK      string `dynamodbav:"GSI2SK"`

	// Federated details, present only for social logins.
	FederatedUserID      string `dynamodbav:"federatedUserId,omitempty"`
	FederatedIssuer      string `dynamodbav:"federatedIssuer,omitempty"`
	FederatedDateCreated string `dynamodbav:"federatedDateCreated,omitempty"`
}

// NewIdentityLink builds an identity item with its subject projection.
func NewIdentityLink(userID, provider, subjectID, username string, now time.Time) IdentityLink {
	return IdentityLink{
		PK:          UserPK(userID),
		SK:          IdentitySK(provider),
		EntityType:  EntityIdentity,
		Provider:    provider,
		ProviderSub: subjectID,
		Username:    username,
		CreatedAt:   FormatTime(now),
		GSI2PK:      SubjectGSI2PK(subjectID),
		GSI2SK:      UserPK(userID),
	}
}

// UserID extracts the canonical user id from the link's projection.
func (l IdentityLink) UserID() string { return UserIDFromKey(l.GSI2SK) }

// Key returns the primary key of the identity item.
func (l IdentityLink) Key() Key { return Key{PK: l.PK, SK: l.SK} }

// SubjectClaim is the uniqueness guard for an external subject. It is keyed
// by the subject itself, so two concurrent executions trying to claim the
// same subject collide on one primary key regardless of which canonical ids
// they minted. It also gives the write path a strongly consistent subject
// lookup; the GSI2 projection on the identity link serves the read paths.
type SubjectClaim struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	UserID     string `dynamodbav:"userId"`
	SubjectID  string `dynamodbav:"subjectId"`
	Provider   string `dynamodbav:"provider"`
	CreatedAt  string `dynamodbav:"createdAt"`
}

// NewSubjectClaim builds the guard item binding a subject to its canonical
// user. It is written in the same transaction as the identity link.
func NewSubjectClaim(subjectID, userID, provider string, now time.Time) SubjectClaim {
	return SubjectClaim{
		PK:         SubjectGSI2PK(subjectID),
		SK:         SKClaim,
		EntityType: EntityIdentityClaim,
		UserID:     userID,
		SubjectID:  subjectID,
		Provider:   provider,
		CreatedAt:  FormatTime(now),
	}
}

// SubjectClaimKey returns the primary key of a subject's guard item.
func SubjectClaimKey(subjectID string) Key {
	return Key{PK: SubjectGSI2PK(subjectID), SK: SKClaim}
}

// TenantMembership is the sole authority for "does user X belong to tenant
// Y". Profile existence alone never grants access.
type TenantMembership struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	UserID     string `dynamodbav:"userId"`
	TenantID   string `dynamodbav:"tenantId"`
	Role       string `dynamodbav:"role"`
	Status     string `dynamodbav:"status"`
	JoinedAt   string `dynamodbav:"joinedAt"`
	GSI3PK     string `dynamodbav:"GSI3PK"`
	GSI3SK     string `dynamodbav:"GSI3SK"`
}

// NewTenantMembership builds a membership item with its tenant projection.
func NewTenantMembership(tenantID, userID, role string, now time.Time) TenantMembership {
	return TenantMembership{
		PK:         UserPK(userID),
		SK:         TenantSK(tenantID),
		EntityType: EntityTenantMembership,
		UserID:     userID,
		TenantID:   tenantID,
		Role:       role,
		Status:     StatusActive,
		JoinedAt:   FormatTime(now),
		GSI3PK:     TenantGSI3PK(tenantID),
		GSI3SK:     UserPK(userID),
	}
}

// Key returns the primary key of the membership item.
func (m TenantMembership) Key() Key { return Key{PK: m.PK, SK: m.SK} }

// SettingsPreferences is the default preference blob created with a profile.
type SettingsPreferences struct {
	Theme    string `dynamodbav:"theme"`
	Language string `dynamodbav:"language"`
}

// SettingsNotifications carries notification opt-ins, default opt-out.
type SettingsNotifications struct {
	MarketingEmail bool `dynamodbav:"marketingEmail"`
}

// Settings is the per-(tenant, user) preference item, created alongside the
// profile and independently updatable afterwards.
type Settings struct {
	PK            string                `dynamodbav:"PK"`
	SK            string                `dynamodbav:"SK"`
	EntityType    string                `dynamodbav:"entityType"`
	Preferences   SettingsPreferences   `dynamodbav:"preferences"`
	Notifications SettingsNotifications `dynamodbav:"notifications"`
	CreatedAt     string                `dynamodbav:"createdAt"`
	UpdatedAt     string                `dynamodbav:"updatedAt"`
}

// NewSettings builds a settings item with generic defaults.
func NewSettings(tenantID, userID string, now time.Time) Settings {
	return Settings{
		PK:         TenantUserPK(tenantID, userID),
		SK:         SKSettings,
		EntityType: EntitySettings,
		Preferences: SettingsPreferences{
			Theme:    "light",
			Language: "en",
		},
		CreatedAt: FormatTime(now),
		UpdatedAt: FormatTime(now),
	}
}

// Key returns the primary key of the settings item.
func (s Settings) Key() Key { return Key{PK: s.PK, SK: s.SK} }

// GroupMembership is the optional finer-grained authorization record for a
// user within a tenant.
type GroupMembership struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	UserID     string `dynamodbav:"userId"`
	TenantID   string `dynamodbav:"tenantId"`
	Group      string `dynamodbav:"group"`
	JoinedAt   string `dynamodbav:"joinedAt"`
	GSI4PK     string `dynamodbav:"GSI4PK"`
	GSI4SK     string `dynamodbav:"GSI4SK"`
}

// NewGroupMembership builds a group membership item with its projection.
func NewGroupMembership(tenantID, userID, group string, now time.Time) GroupMembership {
	return GroupMembership{
		PK:         TenantUserPK(tenantID, userID),
		SK:         GroupSK(group),
		EntityType: EntityGroupMembership,
		UserID:     userID,
		TenantID:   tenantID,
		Group:      group,
		JoinedAt:   FormatTime(now),
		GSI4PK:     GroupGSI4PK(tenantID, group),
		GSI4SK:     UserPK(userID),
	}
}

// Key returns the primary key of the group membership item.
func (g GroupMembership) Key() Key { return Key{PK: g.PK, SK: g.SK} }

// Invitation is a single-use tenant invitation record. Invitation issuance
// is an administrative path; the engine only validates codes against it.
type Invitation struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"entityType"`
	TenantID   string `dynamodbav:"tenantId"`
	Code       string `dynamodbav:"code"`
	Role       string `dynamodbav:"role,omitempty"`
	CreatedAt  string `dynamodbav:"createdAt"`
	ExpiresAt  string `dynamodbav:"expiresAt"`
}

// InvitationKey returns the primary key for a tenant invitation code.
func InvitationKey(tenantID, code string) Key {
	return Key{PK: TenantPK(tenantID), SK: InviteSK(code)}
}

// Expired reports whether the invitation is past its expiry at the given time.
func (i Invitation) Expired(now time.Time) bool {
	expiry, err := time.Parse(time.RFC3339, i.ExpiresAt)
	if err != nil {
		return true
	}
	return now.After(expiry)
}
