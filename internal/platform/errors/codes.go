// Package errors provides structured error handling with machine codes.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Policy rejections. Surfaced to the caller as a denial with a
	// reason; never retried automatically.
	CodeDomainNotAllowed   Code = "DOMAIN_NOT_ALLOWED"
	CodeTenantRequired     Code = "TENANT_REQUIRED"
	CodeAdminOnlySignup    Code = "ADMIN_ONLY_SIGNUP"
	CodeInvitationInvalid  Code = "INVITATION_INVALID"
	CodeInvitationExpired  Code = "INVITATION_EXPIRED"
	CodeCredentialConflict Code = "CREDENTIAL_CONFLICT"

	// Storage errors.
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflictRetryable Code = "CONFLICT_RETRYABLE"
	CodeTransientStore    Code = "TRANSIENT_STORE_FAILURE"

	// Data integrity errors.
	CodeConsistencyViolation Code = "CONSISTENCY_VIOLATION"
	CodeSubjectMissing       Code = "SUBJECT_MISSING"
)

// Class groups codes by how the invoking trigger layer must react.
type Class int

const (
	// ClassUnknown covers unclassified failures; treated as transient by
	// callers that must choose between retrying and denying.
	ClassUnknown Class = iota
	// ClassPolicy is a deliberate rejection. Deny with a reason, never retry.
	ClassPolicy
	// ClassConflict is a lost conditional-write race. Retried internally
	// with a bounded number of re-reads.
	ClassConflict
	// ClassTransient is a network or capacity failure. Propagated so the
	// provider's own delivery retry re-runs the trigger.
	ClassTransient
	// ClassConsistency indicates the durable state contradicts an
	// invariant. Fatal for the invocation, logged loudly.
	ClassConsistency
	// ClassNotFound is a lookup miss, not a failure.
	ClassNotFound
)

// Classify maps a code to its handling class.
func (c Code) Classify() Class {
	switch c {
	case CodeDomainNotAllowed, CodeTenantRequired, CodeAdminOnlySignup,
		CodeInvitationInvalid, CodeInvitationExpired, CodeCredentialConflict:
		return ClassPolicy
	case CodeConflictRetryable:
		return ClassConflict
	case CodeTransientStore:
		return ClassTransient
	case CodeConsistencyViolation, CodeSubjectMissing:
		return ClassConsistency
	case CodeNotFound:
		return ClassNotFound
	default:
		return ClassUnknown
	}
}

// Retryable reports whether re-delivering the triggering event can succeed.
func (c Code) Retryable() bool {
	switch c.Classify() {
	case ClassConflict, ClassTransient, ClassUnknown:
		return true
	default:
		return false
	}
}

// PublicMessage returns the user-visible reason for a code. Messages are
// fixed strings that never echo stored data, so a rejection cannot be used
// to probe which emails or tenants already exist.
func (c Code) PublicMessage() string {
	switch c {
	case CodeDomainNotAllowed:
		return "This email domain is not allowed for registration."
	case CodeTenantRequired:
		return "Registration requires an organization and none could be determined."
	case CodeAdminOnlySignup:
		return "Self-service signup is disabled. Contact an administrator."
	case CodeInvitationInvalid, CodeInvitationExpired:
		return "The invitation is not valid."
	case CodeCredentialConflict:
		return "This sign-in method cannot be linked to the existing account. Contact an administrator."
	default:
		return "Registration is temporarily unavailable. Please try again."
	}
}
