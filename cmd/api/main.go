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

	"facilityfix/api/internal/app"
	"facilityfix/api/internal/attach"
	"facilityfix/api/internal/audit"
	"facilityfix/api/internal/config"
	"facilityfix/api/internal/docstore"
	"facilityfix/api/internal/email"
	"facilityfix/api/internal/export"
	"facilityfix/api/internal/identity"
	"facilityfix/api/internal/notify"
	"facilityfix/api/internal/repo"
	"facilityfix/api/internal/search"
	"facilityfix/api/internal/session"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := docstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := docstore.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	store := docstore.NewPostgresStore(db)
	repository := repo.New(store)

	// Refresh sessions live in Redis when configured, otherwise in the
	// document store.
	var sessions identity.SessionStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		log.Printf("Using the document store for refresh session storage")
		sessions = session.NewDocStore(store)
	}

	idp := identity.NewProvider(repository, sessions, cfg.TokenSecret, cfg.AccessTTL, cfg.RefreshTTL)

	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mail.IsConfigured() {
		log.Printf("Email notifications enabled via %s", cfg.SMTPHost)
	}
	notifier := notify.NewDispatcher(repository, mail)

	if err := os.MkdirAll(cfg.AuditDir, 0o755); err != nil {
		log.Fatalf("failed to create audit dir: %v", err)
	}
	journal, err := audit.NewJournal(cfg.AuditDir)
	if err != nil {
		log.Fatalf("audit journal init failed: %v", err)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		searchService.ReindexAllFromPG(ctx)
	}

	service := app.NewService(repository, idp, notifier, journal, searchService, export.NewService())

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		attachments, err := attach.NewStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("object store connection failed: %v", err)
		}
		service.SetAttachmentStore(attachments)
		log.Printf("Attachment storage enabled on bucket %s", cfg.MinioBucket)
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
		log.Printf("FacilityFix API listening on %s", cfg.Addr)
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
