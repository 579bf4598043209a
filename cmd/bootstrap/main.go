// Command bootstrap reconciles the local plan catalog with the billing
// provider for one environment and writes the result to the plan cache.
//
// Usage:
//
//	bootstrap [environment]
//
// The environment defaults to "development" and selects the env file to
// load: ".env" for development, ".env.<environment>" otherwise.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/instpay/instpay/internal/bootstrap"
	"github.com/instpay/instpay/internal/config"
	"github.com/instpay/instpay/internal/domain/catalog"
	stripegw "github.com/instpay/instpay/internal/integration/stripe"
	"github.com/instpay/instpay/internal/logger"
	"github.com/instpay/instpay/internal/plancache"
)

func main() {
	environment := "development"
	if len(os.Args) > 1 {
		environment = os.Args[1]
	}
	if err := run(context.Background(), environment); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, environment string) error {
	if err := config.LoadEnv(environment); err != nil {
		return err
	}
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}

	cat, err := catalog.LoadCatalog(cfg.Catalog.PlansPath, cfg.Catalog.LineItemsPath)
	if err != nil {
		return err
	}

	client := stripegw.NewClient(cfg, log)
	gateway := stripegw.NewRetryingGateway(client, stripegw.NewRetrier(stripegw.DefaultRetryPolicy, log))

	plans, err := bootstrap.NewBootstrapper(gateway, log).Run(ctx, cat)
	if err != nil {
		return err
	}

	if err := plancache.Write(cfg.Catalog.CachePath, environment, plans); err != nil {
		return err
	}
	log.Infof("bootstrapped %d plans for environment %q into %s", len(plans), environment, cfg.Catalog.CachePath)
	return nil
}
