// Package provider mirrors identity state back onto the managed
// authentication provider. The record store stays the source of truth; the
// mirror only makes the canonical id visible on provider-side lookups.
package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/louisbranch/identitymesh/internal/platform/timeouts"
)

// DefaultUserIDAttribute is the custom attribute the canonical id is
// mirrored into when none is configured.
const DefaultUserIDAttribute = "custom:user_id"

// Client is the subset of the Cognito identity provider API the mirror uses.
type Client interface {
	AdminUpdateUserAttributes(ctx context.Context, params *cognitoidentityprovider.AdminUpdateUserAttributesInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminUpdateUserAttributesOutput, error)
}

// CognitoMirror writes the canonical user id onto Cognito user records.
type CognitoMirror struct {
	client    Client
	attribute string
}

// NewCognitoMirror creates a mirror writing the given custom attribute. An
// empty attribute name selects DefaultUserIDAttribute.
func NewCognitoMirror(client Client, attribute string) *CognitoMirror {
	if attribute == "" {
		attribute = DefaultUserIDAttribute
	}
	return &CognitoMirror{client: client, attribute: attribute}
}

// SyncUserID sets the configured attribute on one pool user. The call is
// bounded so a slow provider API cannot hold the trigger past its own
// delivery deadline.
func (m *CognitoMirror) SyncUserID(ctx context.Context, userPoolID, username, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.AttributeSync)
	defer cancel()

	_, err := m.client.AdminUpdateUserAttributes(ctx, &cognitoidentityprovider.AdminUpdateUserAttributesInput{
		UserPoolId: aws.String(userPoolID),
		Username:   aws.String(username),
		UserAttributes: []types.AttributeType{
			{Name: aws.String(m.attribute), Value: aws.String(userID)},
		},
	})
	if err != nil {
		return fmt.Errorf("update user attributes: %w", err)
	}
	return nil
}
