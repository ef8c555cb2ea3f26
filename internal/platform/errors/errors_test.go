package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeTenantRequired, "no tenant resolved")
	target := New(CodeTenantRequired, "different message")

	if !stderrors.Is(err, target) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(err, New(CodeDomainNotAllowed, "no tenant resolved")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(CodeTransientStore, "put profile", cause)

	if !stderrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable, got %v", err)
	}
	if err.Error() != "put profile" {
		t.Fatalf("expected internal message, got %q", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"domain error", New(CodeConflictRetryable, "race lost"), CodeConflictRetryable},
		{"wrapped domain error", fmt.Errorf("link identity: %w", New(CodeNotFound, "missing")), CodeNotFound},
		{"plain error", stderrors.New("boom"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Fatalf("CodeOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code Code
		want Class
	}{
		{CodeDomainNotAllowed, ClassPolicy},
		{CodeTenantRequired, ClassPolicy},
		{CodeAdminOnlySignup, ClassPolicy},
		{CodeCredentialConflict, ClassPolicy},
		{CodeConflictRetryable, ClassConflict},
		{CodeTransientStore, ClassTransient},
		{CodeConsistencyViolation, ClassConsistency},
		{CodeNotFound, ClassNotFound},
		{CodeUnknown, ClassUnknown},
	}

	for _, tc := range tests {
		if got := tc.code.Classify(); got != tc.want {
			t.Fatalf("Classify(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if CodeDomainNotAllowed.Retryable() {
		t.Fatal("policy rejections must not be retryable")
	}
	if CodeConsistencyViolation.Retryable() {
		t.Fatal("consistency violations must not be retryable")
	}
	if !CodeTransientStore.Retryable() {
		t.Fatal("transient store failures must be retryable")
	}
	if !CodeConflictRetryable.Retryable() {
		t.Fatal("conditional-write races must be retryable")
	}
}

func TestPublicMessageDoesNotLeak(t *testing.T) {
	err := WithMetadata(CodeDomainNotAllowed, "domain evil.com rejected", map[string]string{"domain": "evil.com"})

	msg := err.Code.PublicMessage()
	if msg == err.Message {
		t.Fatal("public message must not expose the internal message")
	}
	if strings.Contains(strings.ToLower(msg), "evil.com") {
		t.Fatalf("public message %q leaks the rejected domain", msg)
	}
}
