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
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nitu-designer/lehangas/internal/handlers"
	"github.com/nitu-designer/lehangas/internal/platform/auth"
	"github.com/nitu-designer/lehangas/internal/platform/config"
	pfirestore "github.com/nitu-designer/lehangas/internal/platform/firestore"
	"github.com/nitu-designer/lehangas/internal/platform/idempotency"
	"github.com/nitu-designer/lehangas/internal/platform/imagehost"
	"github.com/nitu-designer/lehangas/internal/platform/jobs"
	"github.com/nitu-designer/lehangas/internal/platform/localstore"
	"github.com/nitu-designer/lehangas/internal/platform/observability"
	"github.com/nitu-designer/lehangas/internal/platform/secrets"
	platformstorage "github.com/nitu-designer/lehangas/internal/platform/storage"
	"github.com/nitu-designer/lehangas/internal/repositories"
	firestoreRepo "github.com/nitu-designer/lehangas/internal/repositories/firestore"
	"github.com/nitu-designer/lehangas/internal/services"
)

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

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

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
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, firestoreClientOptions(cfg)...)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	blobs, closeBlobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise blob store", zap.Error(err))
	}
	defer closeBlobs()

	local, err := localstore.New(ctx, cfg.LocalStore)
	if err != nil {
		logger.Fatal("failed to open local store", zap.Error(err))
	}
	defer func() {
		if err := local.Close(); err != nil {
			logger.Warn("local store close error", zap.Error(err))
		}
	}()

	images, err := imagehost.New(cfg.ImageHost)
	if err != nil {
		logger.Fatal("failed to initialise image host", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)
	passwords, err := auth.NewPasswordSignIn(ctx, cfg.Firebase.WebAPIKey)
	if err != nil {
		logger.Fatal("failed to initialise password sign-in", zap.Error(err))
	}

	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	categoryRepo, err := firestoreRepo.NewCategoryRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise category repository", zap.Error(err))
	}
	migrationRepo, err := firestoreRepo.NewMigrationRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise migration repository", zap.Error(err))
	}
	contactRepo, err := firestoreRepo.NewAdminContactRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise admin contact repository", zap.Error(err))
	}
	shareRepo, err := firestoreRepo.NewShareEventRepository(firestoreProvider, cfg.Share.Collection)
	if err != nil {
		logger.Fatal("failed to initialise share repository", zap.Error(err))
	}

	migrationRunner, err := services.NewMigrationRunner(services.MigrationRunnerDeps{
		Migrations:  migrationRepo,
		Products:    productRepo,
		Blobs:       blobs,
		ImagePrefix: cfg.Storage.Prefix,
		StepTimeout: cfg.Migration.StepTimeout,
		Clock:       time.Now,
		Logger:      observability.EventLogger(logger.Named("migration")),
	})
	if err != nil {
		logger.Fatal("failed to initialise migration runner", zap.Error(err))
	}

	catalog, err := services.NewCatalogView(services.CatalogViewDeps{
		Products:   productRepo,
		Categories: categoryRepo,
		Migrator:   migrationRunner,
		Logger:     observability.EventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog view", zap.Error(err))
	}
	subscriptions, err := catalog.Start(ctx)
	if err != nil {
		logger.Fatal("failed to subscribe to catalog", zap.Error(err))
	}
	defer subscriptions.Close()

	var sharePublisher services.SharePublisher
	if topicName := strings.TrimSpace(cfg.Share.PubSubTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID, googleClientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubSharePublisher(pubsubClient.Topic(topicName))
		if err != nil {
			logger.Fatal("failed to initialise share publisher", zap.Error(err))
		}
		defer publisher.Stop()
		sharePublisher = publisher
	}

	shareService, err := services.NewShareService(services.ShareServiceDeps{
		Catalog:       catalog,
		Contacts:      contactRepo,
		Events:        shareRepo,
		Publisher:     sharePublisher,
		Origin:        cfg.Server.PublicOrigin,
		RecordTimeout: cfg.Share.RecordTimeout,
		Clock:         time.Now,
		Logger:        observability.EventLogger(logger.Named("share")),
	})
	if err != nil {
		logger.Fatal("failed to initialise share service", zap.Error(err))
	}

	var archive platformstorage.BlobStore
	if cfg.Storage.ArchiveOriginals {
		archive = blobs
	}
	uploadService, err := services.NewUploadService(services.UploadServiceDeps{
		Catalog:     catalog,
		Products:    productRepo,
		Images:      images,
		Archive:     archive,
		ImagePrefix: cfg.Storage.Prefix,
		Clock:       time.Now,
		Logger:      observability.EventLogger(logger.Named("upload")),
	})
	if err != nil {
		logger.Fatal("failed to initialise upload service", zap.Error(err))
	}

	sessionRegistry, err := services.NewSessionRegistry(services.SessionRegistryDeps{
		Store:       local,
		IdleTimeout: cfg.Session.IdleTimeout,
		Clock:       time.Now,
		Logger:      observability.EventLogger(logger.Named("session")),
	})
	if err != nil {
		logger.Fatal("failed to initialise session registry", zap.Error(err))
	}

	authNotifier := auth.NewStateNotifier()
	authLogger := logger.Named("auth")
	unsubscribe := authNotifier.Subscribe(func(change auth.StateChange) {
		authLogger.Info("auth state changed", zap.Bool("signedIn", change.SignedIn), zap.String("uid", change.UID))
	})
	defer unsubscribe()
	authService, err := services.NewAuthService(services.AuthServiceDeps{
		Passwords: passwords,
		Revoker:   firebaseVerifier,
		Notifier:  authNotifier,
		Logger:    observability.EventLogger(authLogger),
	})
	if err != nil {
		logger.Fatal("failed to initialise auth service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreProvider, blobs, local, fetcher, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	shopperCookie, err := handlers.NewShopperCookie(cfg.Session)
	if err != nil {
		logger.Fatal("failed to initialise shopper cookie", zap.Error(err))
	}

	var replayStore idempotency.Store = idempotency.NewMemoryStore(time.Now)
	if redisStore, ok := local.(*localstore.Redis); ok {
		replayStore = idempotency.NewRedisStore(redisStore.Client())
	}
	uploadGuard := idempotency.Guard(replayStore,
		idempotency.WithTTL(cfg.Migration.UploadReplayTTL),
		idempotency.WithMaxBody(cfg.Server.MaxUploadBytes),
		idempotency.WithLogger(observability.EventLogger(logger.Named("idempotency"))),
	)

	if err := migrationRunner.ResumeUnfinished(ctx); err != nil {
		logger.Warn("resume unfinished migrations failed", zap.Error(err))
	}

	scheduler, err := jobs.NewScheduler(jobs.WithLogger(observability.EventLogger(logger.Named("jobs"))))
	if err != nil {
		logger.Fatal("failed to initialise scheduler", zap.Error(err))
	}
	if cfg.Migration.ResumeInterval > 0 {
		if err := scheduler.Every("migration-resume", cfg.Migration.ResumeInterval, migrationRunner.ResumeUnfinished); err != nil {
			logger.Fatal("failed to schedule migration resume", zap.Error(err))
		}
	}
	if cfg.Session.SweepInterval > 0 {
		if err := scheduler.Every("session-sweep", cfg.Session.SweepInterval, func(ctx context.Context) error {
			sessionRegistry.Sweep(ctx)
			return nil
		}); err != nil {
			logger.Fatal("failed to schedule session sweep", zap.Error(err))
		}
	}
	scheduler.Start()

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
		handlers.WithHealthSyncCheck("catalog", catalog.Synced),
	)
	publicHandlers := handlers.NewPublicCatalogHandlers(catalog, shareService)
	sessionHandlers := handlers.NewSessionHandlers(sessionRegistry, catalog, shareService,
		handlers.WithShareRateLimit(cfg.Share.RateLimit, cfg.Share.RateWindow))
	authHandlers := handlers.NewAuthHandlers(authenticator, authService)
	adminHandlers := handlers.NewAdminCatalogHandlers(authenticator, catalog, migrationRunner, uploadService,
		handlers.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		handlers.WithUploadMiddlewares(uploadGuard),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
		handlers.WithSessionMiddlewares(shopperCookie.Middleware),
		handlers.WithAuthRoutes(authHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
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
	if err := scheduler.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown error", zap.Error(err))
	}
	shareService.Wait()
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STOREFRONT_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["STOREFRONT_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func googleClientOptions(cfg config.Config) []option.ClientOption {
	if path := strings.TrimSpace(cfg.Firebase.CredentialsFile); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func firestoreClientOptions(cfg config.Config) []pfirestore.ProviderOption {
	opts := googleClientOptions(cfg)
	if len(opts) == 0 {
		return nil
	}
	return []pfirestore.ProviderOption{pfirestore.WithClientOptions(opts...)}
}

// newBlobStore opens the configured legacy image store and returns its closer.
func newBlobStore(ctx context.Context, cfg config.Config) (platformstorage.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case config.BlobBackendMinIO:
		store, err := platformstorage.NewMinIOStore(ctx, cfg.Storage)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		client, err := cloudstorage.NewClient(ctx, googleClientOptions(cfg)...)
		if err != nil {
			return nil, nil, err
		}
		store, err := platformstorage.NewGCSStore(client, cfg.Storage.Bucket, cfg.Storage.SignedURLTTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func newSystemService(provider *pfirestore.Provider, blobs platformstorage.BlobStore, local localstore.Store, fetcher *secrets.Fetcher, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 4)
	if provider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		})
	}
	if p, ok := blobs.(pinger); ok {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "blobStore",
			Timeout: 1500 * time.Millisecond,
			Check:   p.Ping,
		})
	}
	if p, ok := local.(pinger); ok {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "localStore",
			Timeout:  time.Second,
			Optional: true,
			Check:    p.Ping,
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
