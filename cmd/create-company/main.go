// create-company onboards a tenant from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gartstein/fleet/internal/fleet/bootstrap"
	"github.com/gartstein/fleet/internal/fleet/config"
	"github.com/gartstein/fleet/internal/fleet/controller"
	"github.com/gartstein/fleet/internal/fleet/models"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults to $FLEET_CONFIG)")
	name := flag.String("name", "", "company name")
	slug := flag.String("slug", "", "unique company slug")
	email := flag.String("email", "", "company contact email")
	plan := flag.String("plan", string(models.TierTrial), "plan tier: trial, basic, professional or enterprise")
	flag.Parse()

	if *name == "" || *slug == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := bootstrap.Logger(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	repo, err := bootstrap.Repository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	producer, err := bootstrap.EventProducer(ctx, cfg, repo, logger)
	if err != nil {
		logger.Fatal("failed to initialize event producer", zap.Error(err))
	}
	defer producer.Close()

	platform := controller.NewPlatformService(repo, nil, nil, producer, logger)
	company, err := platform.CreateCompany(ctx, controller.CompanyInput{
		Name:  *name,
		Slug:  *slug,
		Email: *email,
	}, models.PlanTier(*plan))
	if err != nil {
		logger.Fatal("failed to create company", zap.Error(err))
	}

	fmt.Printf("created company %s (%s) on %s, status %s\n",
		company.Slug, company.ID, company.SubscriptionPlan, company.SubscriptionStatus)
	if company.TrialEndsAt != nil {
		fmt.Printf("trial ends %s\n", company.TrialEndsAt.Format("2006-01-02"))
	}
}
