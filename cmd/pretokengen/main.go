// Package main is the pre-token-generation trigger binary.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/louisbranch/identitymesh/internal/claims"
	"github.com/louisbranch/identitymesh/internal/platform/config"
	"github.com/louisbranch/identitymesh/internal/platform/otel"
	"github.com/louisbranch/identitymesh/internal/store/dynamo"
	"github.com/louisbranch/identitymesh/internal/triggers"
)

func main() {
	log.SetPrefix("pretokengen: ")
	log.SetFlags(0)

	ctx := context.Background()

	var cfg triggers.Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}

	shutdown, err := otel.Setup(ctx, "identitymesh-pretokengen")
	if err != nil {
		log.Printf("otel setup: %v", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	records := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.TableName)
	handler := triggers.NewPreTokenGen(claims.NewEnricher(records), cfg)
	lambda.Start(handler.Handle)
}
