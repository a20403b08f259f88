package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	app "imgserv/src/app"
	cfg "imgserv/src/configuration"
	db "imgserv/src/repository"
	server "imgserv/src/server"
)

func main() {
	config, err := cfg.ReadProperties()
	if err != nil {
		logrus.Fatalf("configuration: %v", err)
	}
	log := server.NewLogger(config.LogLevel, config.IsProduction()).WithField("service", "api")
	if err := run(config, log); err != nil {
		log.Errorf("api service stopped: %v", err)
		os.Exit(1)
	}
}

func run(config *cfg.Properties, log logrus.FieldLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(config, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			log.Warnf("close database: %v", err)
		}
	}()
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	storage, err := app.NewMinioS3Client(app.S3Config{
		Endpoint:      config.S3.Endpoint,
		PublicBaseURL: config.S3.PublicBaseURL,
		AccessKey:     config.S3.AccessKey,
		SecretKey:     config.S3.SecretKey,
		Bucket:        config.S3.Bucket,
		Region:        config.S3.Region,
	}, log)
	if err != nil {
		return fmt.Errorf("storage client: %w", err)
	}
	if err := storage.WaitForBucket(ctx); err != nil {
		return fmt.Errorf("bucket %s not ready: %w", config.S3.Bucket, err)
	}

	metrics := server.NewMetrics("api", prometheus.NewRegistry())
	uploads := app.NewUploadService(storage, db.NewImageRepository(database), config.Upload.MaxSize, metrics, log)
	handler := server.NewImageHandler(uploads, db.NewUserRepository(database), log)
	verifier := server.NewRemoteVerifier(config.Auth.ServiceURL, config.Auth.Timeout)

	router := server.NewAPIRouter(config, handler, verifier, metrics, log)
	if err := server.Run(ctx, server.NewHTTPServer(config, router), config.Server.ShutdownTimeout, log); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
