package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/nyp-fyp/chatbot-go/internal/handlers"
	"github.com/nyp-fyp/chatbot-go/internal/i18n"
	"github.com/nyp-fyp/chatbot-go/internal/middleware"
	"github.com/nyp-fyp/chatbot-go/internal/services/ai"
	"github.com/nyp-fyp/chatbot-go/internal/services/cache"
	"github.com/nyp-fyp/chatbot-go/internal/services/knowledge"
	"github.com/nyp-fyp/chatbot-go/internal/services/session"
	"github.com/nyp-fyp/chatbot-go/internal/services/storage"
	"github.com/nyp-fyp/chatbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting chatbot backend...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	storageManager, err := storage.NewManager(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Initialize session cache over the chat files
	sessionStore := session.NewFileStore(cfg.Sessions.Directory, log)
	sessions := session.NewService(sessionStore, log)

	// Initialize AI service
	aiService := ai.NewClient(&cfg.Models, log)

	// Initialize knowledge service
	var knowledgeService knowledge.Service
	if cfg.Knowledge.Enabled && len(cfg.Models.Endpoints) > 0 {
		svc, err := knowledge.NewVectorKnowledgeService(&cfg.Knowledge, &cfg.Models.Endpoints[0], cfg.Models.EmbeddingModel, log)
		if err != nil {
			log.WithError(err).Error("Failed to initialize knowledge service")
		} else if err := svc.LoadKnowledgeBase(ctx, cfg.Knowledge.Directory); err != nil {
			log.WithError(err).Error("Failed to load knowledge base")
			// Continue without knowledge base
		} else {
			knowledgeService = svc
			log.WithField("documents", len(svc.GetAllDocuments())).Info("Knowledge base loaded")
		}
	}

	// Initialize cache
	cacheService := cache.NewCache(cfg, log)

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg, log)

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Initialize metrics
	metrics := middleware.NewMetrics()

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg, storageManager, rateLimiter, localizer, log)
	chatHandler := handlers.NewChatHandler(
		cfg,
		sessions,
		aiService,
		knowledgeService,
		storageManager,
		cacheService,
		rateLimiter,
		localizer,
		metrics,
		log,
	)
	uploadHandler := handlers.NewUploadHandler(cfg, storageManager, rateLimiter, localizer, log)

	router := handlers.NewRouter(authHandler, chatHandler, uploadHandler, storageManager.Tokens(), metrics, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Start periodic tasks
	go startPeriodicTasks(ctx, sessions, metrics, log)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}

	cancel()
	log.Info("Server stopped")
}

// startPeriodicTasks starts periodic background tasks
func startPeriodicTasks(ctx context.Context, sessions *session.Service, metrics *middleware.Metrics, log *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetActiveUsers(float64(sessions.CachedOwners()))
		}
	}
}
