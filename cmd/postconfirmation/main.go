// Package main is the post-confirmation trigger binary.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/louisbranch/identitymesh/internal/identity"
	"github.com/louisbranch/identitymesh/internal/platform/config"
	"github.com/louisbranch/identitymesh/internal/platform/otel"
	"github.com/louisbranch/identitymesh/internal/provider"
	"github.com/louisbranch/identitymesh/internal/store/dynamo"
	"github.com/louisbranch/identitymesh/internal/tenant"
	"github.com/louisbranch/identitymesh/internal/triggers"
)

func main() {
	log.SetPrefix("postconfirmation: ")
	log.SetFlags(0)

	ctx := context.Background()

	var cfg triggers.Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	tenantCfg, err := cfg.TenantConfig()
	if err != nil {
		log.Fatalf("policy config: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}

	shutdown, err := otel.Setup(ctx, "identitymesh-postconfirmation")
	if err != nil {
		log.Printf("otel setup: %v", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	records := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.TableName)
	resolver := tenant.NewResolver(tenantCfg, tenant.NewStoreValidator(records, nil))
	mirror := provider.NewCognitoMirror(cognitoidentityprovider.NewFromConfig(awsCfg), cfg.MirrorAttribute())
	linker := identity.NewLinker(records, resolver, mirror)

	handler := triggers.NewPostConfirmation(linker, cfg)
	lambda.Start(handler.Handle)
}
