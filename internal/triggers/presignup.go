package triggers

import (
	"context"
	"errors"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/louisbranch/identitymesh/internal/gate"
	apperrors "github.com/louisbranch/identitymesh/internal/platform/errors"
)

// Trigger sources the pre-signup handler distinguishes.
const triggerSourceAdminCreate = "PreSignUp_AdminCreateUser"

// PreSignup handles the pre-signup event: admit or deny the signup before
// any record exists, and optionally auto-confirm.
type PreSignup struct {
	gate            *gate.Gate
	autoConfirm     bool
	autoVerifyEmail bool
}

// NewPreSignup creates the pre-signup handler.
func NewPreSignup(g *gate.Gate, cfg Config) *PreSignup {
	return &PreSignup{
		gate:            g,
		autoConfirm:     cfg.AutoConfirm,
		autoVerifyEmail: cfg.AutoVerifyEmail,
	}
}

// Handle returns the event with its response section populated. A denial is
// returned as an error whose message the provider shows to the person
// signing up, so it must be a public message, never internal detail.
func (h *PreSignup) Handle(ctx context.Context, event events.CognitoEventUserPoolsPreSignup) (_ events.CognitoEventUserPoolsPreSignup, err error) {
	_, span := startSpan(ctx, "presignup", event.TriggerSource)
	defer func() { endSpan(span, err) }()

	email := event.Request.UserAttributes["email"]
	err = h.gate.Check(gate.Input{
		Email:          email,
		AdminInitiated: event.TriggerSource == triggerSourceAdminCreate,
	})
	if err != nil {
		code := apperrors.CodeOf(err)
		log.Printf("presignup: denied user %s: %s", event.UserName, code)
		return event, errors.New(code.PublicMessage())
	}

	event.Response.AutoConfirmUser = h.autoConfirm
	event.Response.AutoVerifyEmail = h.autoVerifyEmail && email != ""
	return event, nil
}
