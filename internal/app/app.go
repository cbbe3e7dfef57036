package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"moviebot/internal/bot"
	"moviebot/internal/catalog"
	"moviebot/internal/config"
	"moviebot/internal/lifecycle"
	"moviebot/internal/matcher"
	"moviebot/internal/session"
	"moviebot/internal/storage"
	"moviebot/internal/storage/ch"
	"moviebot/internal/storage/mg"
	"moviebot/internal/storage/pg"
	"moviebot/internal/storage/stubs"
	"moviebot/internal/tmdb"
)

// App represents the application
type App struct {
	config *config.Config
	logger *zap.Logger

	db       storage.Storage
	index    storage.ContentIndex
	journal  storage.Journal
	sessions *session.Store
	bot      *bot.Bot
	server   *http.Server

	// ctx lives until shutdown and scopes every update handler
	ctx     context.Context
	cancel  context.CancelFunc
	closers []func() error
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{config: cfg, logger: logger, ctx: ctx, cancel: cancel}

	logger.Info("Starting Movie Request Bot...")

	if err := app.initStorage(ctx); err != nil {
		app.closeAll()
		return nil, err
	}

	if err := app.initBot(); err != nil {
		app.closeAll()
		return nil, err
	}

	app.initHTTPServer()

	return app, nil
}

// initStorage connects the request store, channel index and journal
func (a *App) initStorage(ctx context.Context) error {
	cfg := a.config

	if cfg.UseMockDB {
		a.logger.Info("Using mock database")
		a.db = stubs.NewMockDB()
	} else {
		a.logger.Info("Connecting to Postgres")
		db, err := pg.NewPostgresDB(ctx, cfg.DatabaseURL, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		a.db = db
	}
	a.closers = append(a.closers, a.db.Close)

	// Initialize database schema
	if err := a.db.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	if cfg.MongoURI == "" {
		a.logger.Info("MONGODB_URI not set, channel index kept in memory")
		a.index = stubs.NewMockIndex()
	} else {
		idx, err := mg.NewIndex(ctx, cfg.MongoURI, cfg.MongoDatabase, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return idx.Close(closeCtx)
		})
		if err := idx.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize channel index: %w", err)
		}
		a.logger.Info("Connected to MongoDB channel index", zap.String("database", cfg.MongoDatabase))
		a.index = idx
	}

	if cfg.ClickHouseHost == "" {
		a.logger.Info("CLICKHOUSE_HOST not set, transition journal kept in memory")
		a.journal = stubs.NewMockJournal()
	} else {
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", cfg.ClickHouseHost),
			zap.Int("port", cfg.ClickHousePort),
			zap.String("database", cfg.ClickHouseDatabase),
			zap.Bool("tls", cfg.ClickHouseUseTLS),
		)
		journal, err := ch.NewClickHouseDB(
			cfg.ClickHouseHost,
			cfg.ClickHousePort,
			cfg.ClickHouseDatabase,
			cfg.ClickHouseUser,
			cfg.ClickHousePassword,
			cfg.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		a.closers = append(a.closers, journal.Close)
		if err := journal.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize journal: %w", err)
		}
		a.journal = journal
	}

	a.sessions = session.NewStore(a.db, a.config.StateTimeout, a.logger)
	return nil
}

// initBot creates the Telegram transport and the lifecycle controller behind it
func (a *App) initBot() error {
	cfg := a.config

	metadata, err := tmdb.New(cfg.TMDBAPIKey, cfg.TMDBLanguage, cfg.ExternalTimeout, a.logger)
	if err != nil {
		return err
	}

	telegramBot, err := bot.NewBot(cfg.TelegramToken, bot.Config{
		AdminChatID:     cfg.AdminChatID,
		ChannelID:       cfg.ChannelID,
		ChannelUsername: cfg.ChannelUsername,
		ImageBaseURL:    cfg.TMDBImageBaseURL,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	m := matcher.New(cfg.FuzzyThreshold, cfg.FuzzySubstringFallback)
	searcher := catalog.NewSearcher(a.db, a.index, m, cfg.CatalogScanLimit, a.logger)

	ctrl := lifecycle.New(lifecycle.Config{
		AdminChatID:       cfg.AdminChatID,
		AdminUserIDs:      cfg.AdminUserIDs,
		ChannelID:         cfg.ChannelID,
		ChannelUsername:   cfg.ChannelUsername,
		ExternalTimeout:   cfg.ExternalTimeout,
		SearchResultLimit: cfg.SearchResultLimit,
	}, lifecycle.Deps{
		Requests: a.db,
		Sessions: a.sessions,
		Journal:  a.journal,
		Index:    a.index,
		Catalog:  searcher,
		Metadata: metadata,
		Notifier: telegramBot,
		Channel:  telegramBot,
	}, a.logger)
	telegramBot.SetLifecycle(ctrl)

	a.logger.Info("Bot created successfully",
		zap.Int64("admin_chat_id", cfg.AdminChatID),
		zap.Int64s("admin_user_ids", cfg.AdminUserIDs),
		zap.Int64("channel_id", cfg.ChannelID),
	)

	a.bot = telegramBot
	return nil
}

// initHTTPServer initializes the HTTP server for health checks and webhook
func (a *App) initHTTPServer() {
	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      a.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	// Root endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		mode := "polling"
		if a.config.WebhookMode {
			mode = "webhook"
		}
		fmt.Fprintf(w, "Movie Request Bot is running (mode: %s)", mode)
	})

	// Webhook endpoint (only used in webhook mode)
	mux.HandleFunc(bot.WebhookPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			a.logger.Warn("Error decoding webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// Process update in background to respond quickly to Telegram
		go a.bot.HandleUpdate(a.ctx, update)

		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	go a.sessions.RunSweeper(a.ctx, a.config.SessionSweepInterval)

	errChan := make(chan error, 1)

	// Start bot in appropriate mode
	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("webhook_url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL); err != nil {
			a.Shutdown()
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
		a.logger.Info("Webhook configured", zap.String("path", bot.WebhookPath))
	} else {
		go func() {
			a.logger.Info("Starting bot in POLLING mode...")
			if err := a.bot.Start(a.ctx); err != nil {
				errChan <- fmt.Errorf("bot stopped: %w", err)
			}
		}()
	}

	// Wait for interrupt signal
	select {
	case <-sigChan:
		a.logger.Info("Shutting down...")
		return a.Shutdown()
	case err := <-errChan:
		a.Shutdown()
		return err
	}
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	a.cancel()

	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	err := a.closeAll()
	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return err
}

// closeAll releases storage in reverse order of opening
func (a *App) closeAll() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Error closing storage", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}
