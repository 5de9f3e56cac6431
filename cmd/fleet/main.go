package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gartstein/fleet/internal/fleet/auth"
	"github.com/gartstein/fleet/internal/fleet/billing"
	"github.com/gartstein/fleet/internal/fleet/bootstrap"
	"github.com/gartstein/fleet/internal/fleet/config"
	"github.com/gartstein/fleet/internal/fleet/controller"
	"github.com/gartstein/fleet/internal/fleet/handlers"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults to $FLEET_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := bootstrap.Logger(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	if !cfg.App.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

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

	accessCache, closeCache, err := bootstrap.AccessCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize access cache", zap.Error(err))
	}
	defer closeCache()

	registry, err := billing.NewRegistryFromConfig(cfg.Billing.ProviderConfigs())
	if err != nil {
		logger.Fatal("failed to configure billing providers", zap.Error(err))
	}
	access := billing.NewAccessChecker(repo, accessCache, logger)
	processor := billing.NewProcessor(repo, registry, access, producer, logger)
	tokens := auth.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)

	handler := handlers.NewHandler(handlers.Services{
		Accounts:    controller.NewAccountService(repo, tokens, cfg.Billing.TrialPeriod(), logger),
		Vehicles:    controller.NewVehicleService(repo, access, producer, logger),
		Shifts:      controller.NewShiftService(repo, access, producer, logger),
		Inspections: controller.NewInspectionService(repo, access, producer, logger),
		Issues:      controller.NewIssueService(repo, access, producer, logger),
		Tickets:     controller.NewTicketService(repo, access, producer, logger),
		Telemetry:   controller.NewTelemetryService(repo, access),
		Billing:     controller.NewBillingService(repo, access, bootstrap.CheckoutGateway(cfg), processor, logger),
		Platform:    controller.NewPlatformService(repo, access, processor, producer, logger),
	}, logger)

	authenticator := auth.NewAuthenticator(tokens, repo)
	router := handlers.NewRouter(handler, authenticator.Middleware(logger))

	server := handlers.NewServer(cfg.GRPC.Port, cfg.HTTP.Port, router, logger,
		grpc.ChainUnaryInterceptor(
			handlers.LoggingInterceptor(logger),
			auth.NewAuthInterceptor(authenticator, handlers.HealthCheckMethod).Unary(),
		),
	)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start servers", zap.Error(err))
		}
	}()

	waitForShutdown(server, logger)
}

// waitForShutdown blocks until an interrupt or SIGTERM is received, then shuts down servers.
func waitForShutdown(server *handlers.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	server.Stop()
	logger.Info("Servers stopped properly")
}
