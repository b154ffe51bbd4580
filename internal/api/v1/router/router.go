package router

import (
	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/migrations"
	"app/internal/notify"
	"app/internal/repository"
	"app/internal/service"
	"app/internal/storage"
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Msg("Router initialized")
	logger.Info().Str("environment", cfg.Environment).Msg("App environment loaded")

	ctx := context.Background()

	// 1. Load managed secrets when the environment does not carry them
	if cfg.UseSecretManager {
		secrets, err := service.NewSecretManagerService(ctx, cfg)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Secret Manager client: %v", err)
			return nil, nil, err
		}
		if err := service.LoadManagedSecrets(ctx, cfg, secrets); err != nil {
			logger.Fatal().Msgf("Failed to load managed secrets: %v", err)
			return nil, nil, err
		}
		_ = secrets.Close()
	}

	// 2. Open DB connections
	dsn := cfg.DBConnectionString
	// In a development environment, we want to ensure that SSL is disabled for
	// local testing. In production, the connection string should be provided
	// with the correct SSL settings.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := " "
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			if strings.Contains(dsn, "?") {
				separator = "&"
			} else {
				separator = "?"
			}
		}
		dsn += separator + "sslmode=disable"
	}

	// Migrations run over database/sql, queries over the pgx pool.
	migrationDB, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB connection: %v", err)
		return nil, nil, err
	}
	if err := migrationDB.Ping(); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
		return nil, nil, err
	}
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatal().Msgf("Failed to set migration dialect: %v", err)
		return nil, nil, err
	}
	if err := goose.UpContext(ctx, migrationDB, "."); err != nil {
		logger.Fatal().Msgf("Failed to run migrations: %v", err)
		return nil, nil, err
	}
	_ = migrationDB.Close()
	logger.Info().Msg("Database migrations applied")

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Fatal().Msgf("Failed to create DB pool: %v", err)
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Msgf("Failed to ping DB pool: %v", err)
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 3. Initialize S3 client
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		logger.Fatal().Msgf("Failed to load S3 config: %v", err)
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})
	objectStore := storage.NewS3Store(s3Client, cfg.S3Bucket, logger)

	// 4. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 5. Initialize Pub/Sub mail publisher. Without a project ID the notifier
	// degrades to logging the jobs it would have sent.
	var publisher notify.Publisher
	if cfg.GCPProjectID != "" {
		p, err := notify.NewPublisher(ctx, cfg.GCPProjectID)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
			return nil, nil, err
		}
		publisher = p
	}
	notifier := notify.NewNotifier(publisher, cfg.MailTopic, logger)

	// 6. Initialize Redis for rate limiting
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, rate limiting disabled")
			redisClient = nil
		}
	}

	// 7. Initialize repositories & services & handlers
	userRepo := repository.NewUserRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	licenseKeyRepo := repository.NewLicenseKeyRepo(pool)
	tokenRepo := repository.NewVerificationTokenRepo(pool)

	ledgerSvc := service.NewLedgerService(ledgerRepo, userRepo, notifier, logger)
	userSvc := service.NewUserService(
		userRepo, tokenRepo, ledgerSvc, notifier,
		cfg.JWTSecret, cfg.AppBaseURL,
		time.Duration(cfg.VerificationTokenTTLHours)*time.Hour,
		logger,
	)
	entitlementSvc := service.NewEntitlementService(userRepo, ledgerSvc, logger)
	stripeSvc := service.NewStripeService(cfg, userRepo, ledgerSvc, logger)
	gumroadSvc := service.NewGumroadService(cfg, userRepo, ledgerSvc, logger)
	promoSvc := service.NewPromoService(userRepo, ledgerSvc, notifier, logger)
	keygenSvc := service.NewKeygenService(licenseKeyRepo, logger)
	pdfClient := service.NewPDFClient(cfg.PDFServiceBaseURL, time.Duration(cfg.PDFRequestTimeoutSec)*time.Second, logger)
	toolSvc := service.NewToolService(entitlementSvc, pdfClient, objectStore, logger)

	authHandler := handler.NewAuthHandler(userSvc, validate, logger)
	userHandler := handler.NewUserHandler(userSvc, logger)
	licenseHandler := handler.NewLicenseHandler(ledgerSvc, validate, logger)
	verifyHandler := handler.NewVerifyHandler(ledgerSvc, cfg.AppBaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(stripeSvc, gumroadSvc, validate, logger)
	adminHandler := handler.NewAdminHandler(promoSvc, keygenSvc, cfg.AdminSecret, logger)
	toolHandler := handler.NewToolHandler(toolSvc, logger)

	// 8. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)
	rateLimit := middleware.RateLimitMiddleware(redisClient, cfg.RateLimitRPM)

	// 9. Create ServeMux router
	mux := http.NewServeMux()

	// Create a subrouter for API v1 with the /v1 prefix
	apiV1Mux := http.NewServeMux()
	authHandler.RegisterRoutes(apiV1Mux)
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	licenseHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	verifyHandler.RegisterRoutes(apiV1Mux)
	webhookHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	adminHandler.RegisterRoutes(apiV1Mux)
	toolHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	apiV1Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", rateLimit(apiV1Mux)))

	// Redirect /api/* to /v1/* for backward compatibility
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/")
		target := "/v1/" + rest
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})

	// Redirect all other root-level requests to /v1/{path}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Avoid redirect loops by checking if already under /v1 or /api
		if strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/v1"+r.URL.Path, http.StatusMovedPermanently)
	})

	// 10. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		// Only remove the middleware if it exists.
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
