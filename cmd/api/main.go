package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"carmarket/api/internal/app"
	"carmarket/api/internal/config"
	"carmarket/api/internal/email"
	"carmarket/api/internal/imagestore"
	"carmarket/api/internal/metrics"
	"carmarket/api/internal/notify"
	"carmarket/api/internal/search"
	"carmarket/api/internal/session"
	"carmarket/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	migrations := os.DirFS(cfg.MigrationsDir)
	if pending, err := store.PendingMigrations(ctx, db, migrations); err == nil && len(pending) > 0 {
		log.Printf("Applying migrations: %s", strings.Join(pending, ", "))
	}
	if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		go searchService.ReindexAllFromPG(ctx)
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	notifiers := notify.Multi{notify.NewEmailNotifier(mailer, cfg.AppBaseURL)}
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		log.Printf("Publishing listing events to RabbitMQ queue %s", cfg.RabbitMQQueue)
		notifiers = append(notifiers, notify.NewAMQPPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue))
	}

	opts := []app.Option{
		app.WithMailer(mailer),
		app.WithNotifier(notifiers),
		app.WithMetrics(metrics.New()),
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		images, err := imagestore.New(imagestore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("image store setup failed: %v", err)
		}
		if err := images.Ping(ctx); err != nil {
			log.Printf("WARNING: image bucket unreachable: %v", err)
		}
		opts = append(opts, app.WithImageStore(images))
	}

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, searchService, opts...)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		service = app.New(cfg, dataStore, searchService, opts...)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("CarMarket API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
