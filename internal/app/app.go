package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"lending/internal/api"
	"lending/internal/bot"
	"lending/internal/config"
	"lending/internal/ledger"
	"lending/internal/storage"
	"lending/internal/storage/ch"
	"lending/internal/storage/pg"
	"lending/internal/storage/stubs"
)

// App represents the application
type App struct {
	config *config.Config
	logger *zap.Logger
	db     storage.Storage
	ledger *ledger.Ledger
	bot    *bot.Bot
	server *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.AppMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	return NewWithConfig(cfg, logger)
}

// NewWithConfig builds the application from an already loaded configuration
func NewWithConfig(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	logger.Info("Starting lending tracker",
		zap.String("asset", cfg.AssetName),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("app_mode", cfg.AppMode),
	)

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.ledger = ledger.New(app.db, logger.Named("ledger"), ledger.WithAssetName(cfg.AssetName))

	// Initialize bot
	if err := app.initBot(); err != nil {
		return nil, err
	}

	// Initialize HTTP server
	app.initHTTPServer()

	return app, nil
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// initDatabase initializes the database connection
func (a *App) initDatabase() error {
	ctx := context.Background()

	var db storage.Storage
	switch a.config.StoreBackend {
	case config.BackendMock:
		a.logger.Info("Using mock database")
		db = stubs.NewMockDB()
	case config.BackendClickHouse:
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.Bool("tls", a.config.ClickHouseUseTLS),
		)
		clickhouseDB, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		db = clickhouseDB
	default:
		a.logger.Info("Connecting to Postgres")
		postgresDB, err := pg.NewPostgresDB(ctx, a.config.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		db = postgresDB
	}

	// Initialize database schema
	if err := db.Initialize(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initBot initializes the Telegram bot
func (a *App) initBot() error {
	if !a.config.BotEnabled() {
		a.logger.Info("TELEGRAM_BOT_TOKEN not set, running without the Telegram bot")
		return nil
	}

	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.ledger, a.config.AllowedUserIDs, a.logger.Named("bot"))
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.logger.Info("Bot created successfully", zap.Int64s("allowed_users", a.config.AllowedUserIDs))

	a.bot = telegramBot
	return nil
}

// Router builds the HTTP routes
func (a *App) Router() *gin.Engine {
	if a.config.AppMode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Client IPs come from the socket, never from forwarding headers
	if err := r.SetTrustedProxies(nil); err != nil {
		a.logger.Warn("Failed to disable trusted proxies", zap.Error(err))
	}

	if len(a.config.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  a.config.CORSAllowedOrigins,
			AllowHeaders:  []string{"Origin", "Content-Type"},
			ExposeHeaders: []string{"Content-Length"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		}))
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		mode := "disabled"
		if a.bot != nil {
			mode = "polling"
			if a.config.WebhookMode {
				mode = "webhook"
			}
		}
		c.String(http.StatusOK, "%s lending tracker is running (bot: %s)", a.ledger.AssetName(), mode)
	})

	// Webhook endpoint (only used in webhook mode)
	r.POST("/telegram-webhook", func(c *gin.Context) {
		if a.bot == nil {
			c.Status(http.StatusNotFound)
			return
		}

		var update tgbotapi.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			a.logger.Warn("Error decoding webhook update", zap.Error(err))
			c.Status(http.StatusBadRequest)
			return
		}

		// Process update in background to respond quickly to Telegram
		go a.bot.HandleWebhookUpdate(update)

		c.Status(http.StatusOK)
	})

	api.RegisterRoutes(r.Group("/api"), a.ledger, a.logger.Named("api"))

	return r
}

// initHTTPServer initializes the HTTP server for health checks, webhook and API
func (a *App) initHTTPServer() {
	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      a.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run serves until SIGINT or SIGTERM, then shuts down
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case a.bot == nil:
	case a.config.WebhookMode:
		if err := a.bot.RegisterWebhook(a.config.WebhookURL); err != nil {
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
	default:
		go func() {
			if err := a.bot.Run(ctx); err != nil {
				a.logger.Error("Bot polling stopped", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()

	a.logger.Info("Shutting down...")
	return a.Shutdown()
}

// Shutdown stops the HTTP server and closes the store
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return nil
}
