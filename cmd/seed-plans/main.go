// seed-plans loads the plan catalogue into the database. Existing plans are
// updated in place by code.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/gartstein/fleet/internal/fleet/billing"
	"github.com/gartstein/fleet/internal/fleet/bootstrap"
	"github.com/gartstein/fleet/internal/fleet/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults to $FLEET_CONFIG)")
	plansPath := flag.String("plans", "", "plan catalogue file (defaults to billing.plans_file)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := bootstrap.Logger(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if *plansPath == "" {
		*plansPath = cfg.Billing.PlansFile
	}
	plans, err := billing.LoadCatalogueFile(*plansPath)
	if err != nil {
		logger.Fatal("failed to load plan catalogue", zap.String("path", *plansPath), zap.Error(err))
	}

	ctx := context.Background()
	repo, err := bootstrap.Repository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	if err := billing.SeedPlans(ctx, repo, plans); err != nil {
		logger.Fatal("failed to seed plans", zap.Error(err))
	}
	for _, p := range plans {
		logger.Info("plan seeded",
			zap.String("code", p.Code),
			zap.String("tier", string(p.Tier)),
			zap.String("amount", p.Amount.StringFixed(2)),
			zap.String("currency", p.Currency),
		)
	}
}
