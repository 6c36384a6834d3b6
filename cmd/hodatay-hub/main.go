package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"

	"github.com/kgellert/hodatay-chat/internal/config"
	"github.com/kgellert/hodatay-chat/internal/hub"
	"github.com/kgellert/hodatay-chat/internal/hub/auth"
	"github.com/kgellert/hodatay-chat/internal/hub/httpapi"
	"github.com/kgellert/hodatay-chat/internal/hub/storage/memory"
	"github.com/kgellert/hodatay-chat/internal/hub/storage/postgres"
	"github.com/kgellert/hodatay-chat/internal/lib/logger"
	"github.com/kgellert/hodatay-chat/internal/lib/logger/sl"
	"github.com/kgellert/hodatay-chat/internal/uploads"
)

func main() {
	mint := flag.String("mint", "", "print a session token for this user id and exit")
	name := flag.String("name", "", "display name for -mint")
	ttl := flag.Duration("ttl", 0, "lifetime of the -mint token (default auth.session_ttl)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found, skipping...")
	}

	cfg := config.MustLoad()

	log := logger.Setup(cfg.Env, os.Stdout)

	if cfg.Auth.Secret == "" {
		log.Error("auth secret is not set (HODATAY_AUTH_SECRET)")
		os.Exit(1)
	}
	authenticator := auth.New(cfg.Auth.Secret)

	if *mint != "" {
		if *ttl == 0 {
			*ttl = cfg.Auth.SessionTTL
		}
		token, err := authenticator.Issue(auth.Identity{UserID: *mint, Name: *name}, *ttl)
		if err != nil {
			log.Error("failed to mint token", sl.Err(err))
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	log.Info("starting hodatay-hub", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := setupStorage(ctx, cfg, log)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	opts := hub.Options{
		Store:        store,
		Auth:         authenticator,
		HistoryLimit: cfg.Messages.HistoryLimit,
		Log:          log,
	}
	deps := httpapi.Deps{
		Auth:   authenticator,
		Config: cfg,
		Log:    log,
	}

	if cfg.S3.Enabled() {
		svc, err := setupUploads(ctx, cfg.S3)
		if err != nil {
			log.Error("failed to load aws config", sl.Err(err))
			os.Exit(1)
		}
		opts.Attachments = svc
		deps.Uploads = svc
		log.Info("attachments enabled", slog.String("bucket", cfg.S3.Bucket))
	} else {
		log.Warn("s3 bucket is not set, attachments disabled")
	}

	h := hub.NewHub(log)
	go h.Run(ctx)

	handler := hub.NewHandler(h, opts)
	go handler.RunPresence(ctx)

	deps.WS = handler
	deps.Direct = handler

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop server", sl.Err(err))
		}
	}()

	log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to start server", sl.Err(err))
	}

	log.Info("server stopped")
}

// setupStorage uses Postgres when a DSN is configured and an in-memory store
// otherwise.
func setupStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (hub.Store, func(), error) {
	if cfg.DatabaseDSN == "" {
		log.Warn("database dsn is not set, using in-memory storage")
		return memory.New(), func() {}, nil
	}

	storage, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, nil, err
	}

	closeStorage := func() {
		if err := storage.Close(); err != nil {
			log.Error("failed to close storage", sl.Err(err))
		}
	}
	return storage, closeStorage, nil
}

func setupUploads(ctx context.Context, cfg config.S3Config) (*uploads.Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	presigner := s3.NewPresignClient(s3Client)

	return uploads.NewService(cfg.Bucket, presigner, s3Client, cfg.PresignTTL), nil
}
