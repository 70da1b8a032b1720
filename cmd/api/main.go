package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/storefront/internal/di"
	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/jobs"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/platform/secrets"
	platformstorage "github.com/hanko-field/storefront/internal/platform/storage"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
)

const meterName = "github.com/hanko-field/storefront"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("Razorpay.KeySecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var clientOpts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(clientOpts...))
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	txLogger := logger.Named("firestore")
	store, err := firestoreRepo.NewStore(firestoreProvider,
		pfirestore.WithTxTimeout(cfg.Server.WriteTimeout),
		pfirestore.WithTxRetryHook(func(_ context.Context, attempt int) {
			txLogger.Warn("firestore transaction retried after contention", zap.Int("attempt", attempt))
		}),
	)
	if err != nil {
		logger.Fatal("failed to initialise firestore store", zap.Error(err))
	}

	gateway, err := payments.NewRazorpayGateway(payments.RazorpayConfig{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		BaseURL:   cfg.Razorpay.BaseURL,
		Timeout:   cfg.Razorpay.Timeout,
		Logger:    observability.ServiceLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise razorpay gateway", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}

	infra := di.Infrastructure{
		Store:         store,
		Gateway:       gateway,
		Authenticator: auth.NewAuthenticator(firebaseVerifier, auth.WithRoleClaim(cfg.Firebase.RoleClaim)),
		ServiceTokens: buildServiceTokenVerifier(logger.Named("auth"), cfg),
		Readiness:     map[string]handlers.ReadinessCheck{},
		Logger:        logger,
		Meter:         otel.GetMeterProvider().Meter(meterName),
		Clock:         time.Now,
		Build:         buildInfoFromEnv(envValues, cfg, startedAt),
	}

	var closers []func()

	if topicName := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, clientOpts...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := client.Topic(topicName)
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		infra.Events = publisher
		closers = append(closers, func() {
			topic.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		})
	} else {
		logger.Info("order events disabled: no pubsub topic configured")
	}

	if bucket := strings.TrimSpace(cfg.Storage.ReturnsBucket); bucket != "" {
		client, err := gcs.NewClient(ctx, clientOpts...)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		uploader, err := platformstorage.NewUploader(client, bucket, cfg.Storage.PublicBaseURL)
		if err != nil {
			logger.Fatal("failed to initialise evidence uploader", zap.Error(err))
		}
		infra.Evidence = uploader
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		})
	}

	idempotencyStore, closeIdempotency := buildIdempotencyStore(logger, cfg, infra.Readiness)
	infra.Idempotency = idempotencyStore
	if closeIdempotency != nil {
		closers = append(closers, closeIdempotency)
	}

	container, err := di.NewContainer(ctx, cfg, infra)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("store close error", zap.Error(err))
	}
}

// buildIdempotencyStore uses Redis when API_REDIS_ADDR is set and the process-local store otherwise.
func buildIdempotencyStore(logger *zap.Logger, cfg config.Config, readiness map[string]handlers.ReadinessCheck) (idempotency.Store, func()) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		logger.Warn("idempotency keys kept in memory: no redis address configured")
		return idempotency.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store, err := idempotency.NewRedisStore(client, "storefront:idempotency:")
	if err != nil {
		logger.Fatal("failed to initialise redis idempotency store", zap.Error(err))
	}
	readiness["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}
}

func buildServiceTokenVerifier(logger *zap.Logger, cfg config.Config) *auth.ServiceTokenVerifier {
	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Info("internal routes disabled: no oidc audience configured")
		return nil
	}
	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	keys := auth.NewKeySet(cfg.Security.OIDC.JWKSURL, client, time.Now)
	return auth.NewServiceTokenVerifier(keys, audience, cfg.Security.OIDC.Issuers, observability.NewPrintfAdapter(logger))
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" && strings.EqualFold(lookup("API_SECURITY_ENVIRONMENT"), "local") {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.GetMeterProvider().Meter(meterName)),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if ttl, err := time.ParseDuration(lookup("API_SECRET_CACHE_TTL")); err == nil && ttl > 0 {
		opts = append(opts, secrets.WithCacheTTL(ttl))
	}
	if file := lookup("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
