package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cell-backend/cmd"
	"cell-backend/internal/api"
	"cell-backend/internal/core"
	"cell-backend/internal/database"
	"cell-backend/internal/s3"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sugarme/gotch"
)

type APIConfig struct {
	APIPort string `env:"API_PORT" envDefault:"9090"`

	ModelWeightsPath string `env:"MODEL_WEIGHTS_PATH" envDefault:"models/model.pt"`
	ModelInfoPath    string `env:"MODEL_INFO_PATH" envDefault:"models/model_info.json"`
	PretrainedDir    string `env:"PRETRAINED_DIR"`

	SavedImageDir string `env:"SAVED_IMAGE_DIR" envDefault:"data/saved_images"`
	DatabasePath  string `env:"DATABASE_PATH" envDefault:"data/predictions.db"`

	// When set, the weights and descriptor are staged from object storage
	// into the local model directory before loading.
	ModelS3URI        string `env:"MODEL_S3_URI"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func main() {
	log.Println("Starting cell classification API server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if cfg.ModelS3URI != "" {
		if err := stageModelArtifacts(&cfg); err != nil {
			log.Fatalf("Failed to stage model artifacts: %v", err)
		}
	}

	registry := core.NewRegistry(gotch.CPU).WithPretrainedDir(cfg.PretrainedDir)
	model, inputSize, info, err := core.LoadClassifier(registry, cfg.ModelWeightsPath, cfg.ModelInfoPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	defer model.Release()
	log.Printf("Model loaded: %s (input size %d)", info.ModelName, inputSize)

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open prediction database: %v", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	apiHandler := api.NewBackendService(model, info.ModelName, db, cfg.SavedImageDir)
	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("error during server shutdown", "error", err)
		}
	}()

	log.Printf("Listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

func stageModelArtifacts(cfg *APIConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client, err := s3.NewClient(ctx, &s3.Config{
		S3EndpointURL:     cfg.S3EndpointURL,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		S3Region:          cfg.S3Region,
	})
	if err != nil {
		return err
	}

	return client.DownloadArtifacts(ctx, cfg.ModelS3URI, filepath.Dir(cfg.ModelWeightsPath))
}
