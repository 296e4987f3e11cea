package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/readmission/pkg/common/config"
	"github.com/synaptica-ai/readmission/pkg/common/database"
	"github.com/synaptica-ai/readmission/pkg/common/kafka"
	"github.com/synaptica-ai/readmission/pkg/common/logger"
	"github.com/synaptica-ai/readmission/pkg/common/middleware"
	"github.com/synaptica-ai/readmission/pkg/common/models"
	"github.com/synaptica-ai/readmission/pkg/observability/metrics"
	"github.com/synaptica-ai/readmission/pkg/storage"
	"github.com/synaptica-ai/readmission/pkg/training"
)

func main() {
	logger.Init()
	cfg := config.Load()

	var jobs training.JobStore = training.NewMemoryStore()
	if cfg.PostgresEnabled {
		db, err := database.GetPostgres()
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to connect to postgres")
		}
		defer database.ClosePostgres()
		repo := training.NewRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate training jobs table")
		}
		jobs = repo
	}

	var schemas training.SchemaSource
	if cfg.RedisEnabled {
		client, err := database.GetRedis()
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to connect to redis")
		}
		defer database.CloseRedis()
		schemas = storage.NewFeatureStore(client, cfg.FeatureStoreCacheTTL)
	}

	service, err := training.NewService(jobs, schemas, cfg.ArtifactDir, cfg.DataDir, training.Defaults{
		Epochs:       cfg.TrainingEpochs,
		LearningRate: cfg.TrainingLearningRate,
		L2:           cfg.TrainingL2,
		Balanced:     cfg.TrainingBalanced,
		TestFraction: cfg.TrainingTestFraction,
		Seed:         cfg.TrainingSeed,
		Threshold:    cfg.TrainingThreshold,
	}, cfg.TrainingMaxWorkers)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to initialize training service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.KafkaEnabled && cfg.TrainingAutoTrain {
		consumer := kafka.NewConsumer(cfg.PipelineEventsTopic, cfg.KafkaGroupID, models.EventPipelineCompleted)
		defer consumer.Close()
		go func() {
			err := consumer.Consume(ctx, service.PipelineEventHandler(cfg.TrainingModelName))
			if err != nil && ctx.Err() == nil {
				logger.Log.WithError(err).Fatal("consumer error")
			}
		}()
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	training.NewHTTPHandler(service, cfg.MaxRequestBody).Register(router)

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.TrainingPort),
		Handler: middleware.Recovery(
			middleware.Logging(
				middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)(router))),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":         cfg.ServerHost,
			"port":         cfg.TrainingPort,
			"artifact_dir": cfg.ArtifactDir,
		}).Info("Training Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Training Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Training Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
