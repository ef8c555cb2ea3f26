package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
)

type stubClient struct {
	input *cognitoidentityprovider.AdminUpdateUserAttributesInput
	err   error
}

func (s *stubClient) AdminUpdateUserAttributes(_ context.Context, params *cognitoidentityprovider.AdminUpdateUserAttributesInput, _ ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminUpdateUserAttributesOutput, error) {
	s.input = params
	return &cognitoidentityprovider.AdminUpdateUserAttributesOutput{}, s.err
}

func TestSyncUserID(t *testing.T) {
	client := &stubClient{}
	m := NewCognitoMirror(client, "")

	if err := m.SyncUserID(context.Background(), "pool-1", "bob", "user-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	in := client.input
	if in == nil {
		t.Fatal("no call recorded")
	}
	if *in.UserPoolId != "pool-1" || *in.Username != "bob" {
		t.Fatalf("input = %+v", in)
	}
	if len(in.UserAttributes) != 1 {
		t.Fatalf("attributes = %+v", in.UserAttributes)
	}
	if *in.UserAttributes[0].Name != DefaultUserIDAttribute || *in.UserAttributes[0].Value != "user-1" {
		t.Fatalf("attribute = %+v", in.UserAttributes[0])
	}
}

func TestSyncUserIDCustomAttribute(t *testing.T) {
	client := &stubClient{}
	m := NewCognitoMirror(client, "custom:canonical_id")

	if err := m.SyncUserID(context.Background(), "pool-1", "bob", "user-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if *client.input.UserAttributes[0].Name != "custom:canonical_id" {
		t.Fatalf("attribute name = %q", *client.input.UserAttributes[0].Name)
	}
}

func TestSyncUserIDError(t *testing.T) {
	client := &stubClient{err: errors.New("throttled")}
	m := NewCognitoMirror(client, "")

	if err := m.SyncUserID(context.Background(), "pool-1", "bob", "user-1"); err == nil {
		t.Fatal("expected error")
	}
}
