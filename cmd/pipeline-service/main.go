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
	"github.com/synaptica-ai/readmission/pkg/observability/metrics"
	"github.com/synaptica-ai/readmission/pkg/pipeline"
	"github.com/synaptica-ai/readmission/pkg/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	cleaner, encoder, err := pipeline.NewStages(cfg.RulesFile, cfg.MissingnessCutoff)
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid pipeline configuration")
	}

	router := mux.NewRouter()
	deps := pipeline.Dependencies{}

	if cfg.PostgresEnabled {
		db, err := database.GetPostgres()
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to connect to postgres")
		}
		defer database.ClosePostgres()

		runs := pipeline.NewRepository(db)
		if err := runs.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate pipeline runs table")
		}
		patients := storage.NewPatientStore(db, cfg.PatientBatchSize)
		if err := patients.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate patients table")
		}
		deps.Store = runs
		deps.Patients = patients
		storage.NewHTTPHandler(patients, cfg.MaxRequestBody).Register(router)
	}

	if cfg.RedisEnabled {
		client, err := database.GetRedis()
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to connect to redis")
		}
		defer database.CloseRedis()
		deps.Schemas = storage.NewFeatureStore(client, cfg.FeatureStoreCacheTTL)
	}

	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(cfg.PipelineEventsTopic)
		defer producer.Close()
		deps.Events = producer
	}

	runner := pipeline.NewRunner(cleaner, encoder, deps, "pipeline-service", cfg.DataDir, cfg.MaxConcurrentRuns)
	pipeline.NewHTTPHandler(runner, cfg.MaxRequestBody).Register(router)
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	handler := middleware.Recovery(
		middleware.Logging(
			middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)(
				middleware.BodyLimit(cfg.MaxRequestBody)(router))))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":     cfg.ServerHost,
			"port":     cfg.ServerPort,
			"data_dir": cfg.DataDir,
			"postgres": cfg.PostgresEnabled,
			"redis":    cfg.RedisEnabled,
			"kafka":    cfg.KafkaEnabled,
		}).Info("Pipeline Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Pipeline Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Pipeline Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
