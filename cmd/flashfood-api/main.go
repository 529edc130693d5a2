// README: Entry point; loads config, wires stores, dispatch, realtime and matching, starts the HTTP server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"flashfood/internal/config"
	httptransport "flashfood/internal/http"
	"flashfood/internal/infra"
	"flashfood/internal/maps"
	"flashfood/internal/modules/dispatch"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/location"
	"flashfood/internal/modules/matching"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/snapshot"
	"flashfood/internal/modules/stats"
	"flashfood/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	firebaseApp, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		logger.Fatal("firebase init", zap.Error(err))
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, firebaseApp)
	if err != nil {
		logger.Fatal("firebase auth init", zap.Error(err))
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	var (
		routes   = maps.NewFallback(nil, logger)
		geocoder snapshot.Geocoder
	)
	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps route client", zap.Error(err))
		}
		routes = maps.NewFallback(routeSvc, logger)
		geocodeSvc, err := maps.NewGeocodeService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps geocode client", zap.Error(err))
		}
		geocoder = geocodeSvc
	}

	registry := realtime.NewRegistry(logger)
	sinks := []realtime.Sink{realtime.NewRegistrySink(registry)}
	if w := infra.NewKafkaWriter(cfg.Realtime.KafkaBrokers, cfg.Realtime.TrackingTopic, cfg.Realtime.PublishTimeout); w != nil {
		defer func() { _ = w.Close() }()
		sinks = append(sinks, realtime.NewKafkaSink(w, cfg.Realtime.PublishTimeout))
	}
	notifier := realtime.NewNotifier(registry, cfg.Realtime.DedupeTTL, logger, sinks...)

	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(orderStore, notifier, logger)
	driverStore := driver.NewStore(dbPool)
	snapshots := snapshot.NewStore(dbPool, geocoder, logger)
	statsSvc := stats.NewService(stats.NewStore(dbPool), logger)

	dispatchSvc := dispatch.NewService(dispatch.Config{DriverCapacity: cfg.Dispatch.DriverCapacity}, dispatch.Deps{
		Tx:        dispatch.NewPgTxManager(dbPool, logger),
		Orders:    orderStore,
		Snapshots: snapshots,
		Routes:    routes,
		Stats:     statsSvc,
		Notifier:  notifier,
		Log:       logger,
	})

	locationSvc := location.NewService(driverStore, location.NewStore(redisClient), logger)

	matchingDeps := matching.Deps{
		Store:    matching.NewStore(redisClient, cfg.Matching.OfferTTL),
		Orders:   orderStore,
		Drivers:  driverStore,
		Contacts: snapshots,
		Offers:   notifier,
		Log:      logger,
	}
	if cfg.Matching.PushOffline {
		pusher, err := matching.NewFCMPusher(ctx, firebaseApp)
		if err != nil {
			logger.Fatal("firebase messaging init", zap.Error(err))
		}
		matchingDeps.Push = pusher
	}
	matchingSvc := matching.NewService(matchingDeps, cfg.Matching, cfg.Dispatch.DriverCapacity)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Verifier: verifier,
		Registry: registry,
		Dispatch: dispatchSvc,
		Orders:   orderSvc,
		Matching: matchingSvc,
		Location: locationSvc,
		Stats:    statsSvc,
		Log:      logger,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, router, logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("http server", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
