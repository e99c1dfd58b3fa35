package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roommap/server/config"
	"roommap/server/internal/api"
	"roommap/server/internal/camera"
	"roommap/server/internal/database"
	"roommap/server/internal/geocoding"
	"roommap/server/internal/mapview"
	"roommap/server/internal/models"
	"roommap/server/internal/processor"
	"roommap/server/internal/queue"
	"roommap/server/internal/scheduler"
	"roommap/server/internal/selection"
	"roommap/server/internal/spatial"
	"roommap/server/internal/viewport"
)

func engineConfig(cfg *config.Config) mapview.Config {
	ec := mapview.DefaultConfig()
	ec.Index = spatial.Options{
		MinZoom:   cfg.Clustering.MinZoom,
		MaxZoom:   cfg.Clustering.MaxZoom,
		MinPoints: cfg.Clustering.MinPoints,
		Radius:    cfg.Clustering.Radius,
		Extent:    cfg.Clustering.Extent,
		NodeSize:  cfg.Clustering.NodeSize,
	}
	ec.Limits = viewport.Limits{MinDelta: cfg.Viewport.MinDelta, MaxDelta: cfg.Viewport.MaxDelta}
	ec.Planner = camera.PlannerConfig{
		Padding:     cfg.Expansion.Padding,
		MinLatDelta: cfg.Expansion.MinLatDelta,
		MaxLatDelta: cfg.Expansion.MaxLatDelta,
		MinLngDelta: cfg.Expansion.MinLngDelta,
		MaxLngDelta: cfg.Expansion.MaxLngDelta,
	}
	ec.CameraDuration = cfg.Expansion.Duration
	ec.SheetDuration = cfg.Selection.SheetDuration
	ec.Debounce = cfg.Selection.Debounce
	ec.MarkerCapacity = cfg.Selection.MarkerCapacity
	ec.Fallback = config.DefaultRegion().Viewport()
	return ec
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := config.LoadRegions(cfg.Server.RegionsPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.WithField("path", cfg.Server.RegionsPath).Info("No regions file, using built-in regions")
		} else {
			logger.WithError(err).Fatal("Failed to load regions")
		}
	}

	logger.Infof("Using database at: %s", cfg.Server.DBPath)
	db, err := database.NewDatabase(cfg.Server.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	engine := mapview.NewEngine(engineConfig(cfg), logger, selection.Callbacks{
		OnMarkerPress: func(record models.PropertyRecord) {
			logger.WithField("listing_id", record.ID.String()).Info("Listing chosen")
		},
		OnBuildingModalStateChange: func(open bool) {
			logger.WithField("open", open).Debug("Unit sheet toggled")
		},
		OnMarkerSelectionChange: func(key *string) {
			if key == nil {
				logger.Debug("Marker selection cleared")
				return
			}
			logger.WithField("building_key", *key).Debug("Marker selected")
		},
	})
	if err := engine.Load(db); err != nil {
		logger.WithError(err).Fatal("Failed to load listings")
	}

	engine.Scheduler().OnComplete(func(cmd scheduler.Command) {
		logger.WithFields(logrus.Fields{
			"seq":  cmd.Seq,
			"kind": cmd.Kind.String(),
		}).Debug("Transition finished")
	})
	engine.Scheduler().Start(cfg.Server.TickInterval)
	defer engine.Scheduler().Stop()

	listingQueue := queue.NewListingQueue(cfg.BatchProcessing.QueueSize, logger)
	batchProcessor := processor.NewBatchProcessor(db, listingQueue, cfg, logger)
	batchProcessor.OnCommitted(func(batch []*models.PropertyRecord) {
		if err := engine.Load(db); err != nil {
			logger.WithError(err).Error("Failed to reload listings after batch")
		}
	})
	batchProcessor.Start()
	defer batchProcessor.Stop()

	geocoder := geocoding.NewGeocoder(logger, geocoding.Config{
		BaseURL:     cfg.Geocoding.BaseURL,
		UserAgent:   cfg.Geocoding.UserAgent,
		CachePath:   cfg.Geocoding.CachePath,
		Timeout:     cfg.Geocoding.Timeout,
		MinInterval: cfg.Geocoding.MinInterval,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	handler := api.NewHandler(engine, db, listingQueue, geocoder, cfg.BatchProcessing.MaxBatchSize, logger)
	api.SetupRoutes(router, handler, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}
