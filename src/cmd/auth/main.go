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
	log := server.NewLogger(config.LogLevel, config.IsProduction()).WithField("service", "auth")
	if err := run(config, log); err != nil {
		log.Errorf("auth service stopped: %v", err)
		os.Exit(1)
	}
}

func run(config *cfg.Properties, log logrus.FieldLogger) error {
	codec, err := app.NewTokenCodec(config.JWT.Secret, config.JWT.Algorithm, config.AccessTTL(), config.JWT.RefreshTTL)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

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

	google := app.NewGoogleProvider(ctx, app.GoogleConfig{
		ClientID:     config.Google.ClientID,
		ClientSecret: config.Google.ClientSecret,
		RedirectURL:  config.Google.RedirectURL,
		AuthURL:      config.Google.AuthURL,
		TokenURL:     config.Google.TokenURL,
		UserInfoURL:  config.Google.UserInfoURL,
	})
	if !config.IsProduction() {
		log.Warn("test-token endpoint is enabled")
	}

	metrics := server.NewMetrics("auth", prometheus.NewRegistry())
	auth := app.NewAuthService(codec, db.NewUserRepository(database), google,
		app.WithProduction(config.IsProduction()),
		app.WithTokenRecorder(metrics),
		app.WithLogger(log),
	)
	handler := server.NewAuthHandler(auth, config.FrontendURL, config.IsProduction(), log)

	router := server.NewAuthRouter(config, handler, server.NewLocalVerifier(auth), metrics, log)
	if err := server.Run(ctx, server.NewHTTPServer(config, router), config.Server.ShutdownTimeout, log); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
