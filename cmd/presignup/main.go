// Package main is the pre-signup trigger binary.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/louisbranch/identitymesh/internal/gate"
	"github.com/louisbranch/identitymesh/internal/platform/config"
	"github.com/louisbranch/identitymesh/internal/platform/otel"
	"github.com/louisbranch/identitymesh/internal/triggers"
)

func main() {
	log.SetPrefix("presignup: ")
	log.SetFlags(0)

	ctx := context.Background()

	var cfg triggers.Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	gateCfg, err := cfg.GateConfig()
	if err != nil {
		log.Fatalf("policy config: %v", err)
	}

	shutdown, err := otel.Setup(ctx, "identitymesh-presignup")
	if err != nil {
		log.Printf("otel setup: %v", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	handler := triggers.NewPreSignup(gate.New(gateCfg), cfg)
	lambda.Start(handler.Handle)
}
