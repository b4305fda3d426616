package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthcompanion/api/internal/config"
	"github.com/healthcompanion/api/internal/domain/analysis"
	"github.com/healthcompanion/api/internal/domain/chat"
	"github.com/healthcompanion/api/internal/domain/extraction"
	"github.com/healthcompanion/api/internal/domain/identity"
	"github.com/healthcompanion/api/internal/domain/records"
	"github.com/healthcompanion/api/internal/platform/auth"
	"github.com/healthcompanion/api/internal/platform/db"
	"github.com/healthcompanion/api/internal/platform/llm"
	"github.com/healthcompanion/api/internal/platform/middleware"
	"github.com/healthcompanion/api/internal/platform/objectstore"
	"github.com/healthcompanion/api/internal/platform/ocr"
	"github.com/healthcompanion/api/internal/platform/recordstore"
)

// maxBodyBytes caps uploaded document size across all endpoints.
const maxBodyBytes = 10 << 20

func main() {
	rootCmd := &cobra.Command{
		Use:   "companion-server",
		Short: "Health Companion API Server",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Health Companion API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// AWS clients
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load aws config")
	}

	objects := objectstore.NewS3Store(s3.NewFromConfig(awsCfg), cfg.S3Bucket)

	// Record index backend
	var index recordstore.Store
	switch cfg.IndexBackend {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, 10, 2)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		pg := recordstore.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare record index schema")
		}
		index = pg
		logger.Info().Msg("record index on postgres")
	case "memory":
		index = recordstore.NewMemStore()
		logger.Warn().Msg("record index in memory, data will not survive restarts")
	default:
		index = recordstore.NewDynamoStore(
			dynamodb.NewFromConfig(awsCfg),
			cfg.UsersTable,
			cfg.DocumentsTable,
			cfg.FingerprintIndex,
		)
		logger.Info().Str("users_table", cfg.UsersTable).
			Str("documents_table", cfg.DocumentsTable).
			Msg("record index on dynamodb")
	}

	// OCR and language model
	ocrClient := ocr.NewTextractClient(textract.NewFromConfig(awsCfg))
	var agent llm.AgentAPI
	if cfg.KnowledgeBaseEnabled() {
		agent = bedrockagentruntime.NewFromConfig(awsCfg)
	}
	model := llm.NewBedrockInvoker(
		bedrockruntime.NewFromConfig(awsCfg),
		agent,
		cfg.BedrockModelID,
		cfg.KnowledgeBaseID,
		cfg.MaxTokens,
		cfg.Temperature,
	)

	// Sessions and services
	sessions := auth.NewManager(cfg.SessionSecret, time.Duration(cfg.SessionTTLMin)*time.Minute)

	extractSvc := extraction.NewService(ocrClient)
	analysisSvc := analysis.NewService(extractSvc, model, logger)
	recordsSvc := records.NewService(objects, index, logger)
	identitySvc := identity.NewService(objects, index, sessions, logger)
	chatSvc := chat.NewService(index, model, cfg.KnowledgeBaseEnabled(), logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	apiV1 := e.Group("/api/v1")
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	protected := apiV1.Group("", auth.Middleware(sessions))
	records.NewHandler(recordsSvc, extractSvc, analysisSvc, logger).RegisterRoutes(protected)
	analysis.NewHandler(analysisSvc).RegisterRoutes(protected)
	chat.NewHandler(chatSvc).RegisterRoutes(protected)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
