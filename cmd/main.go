package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/tournament-payouts/config"
	"github.com/Dosada05/tournament-payouts/db"
	"github.com/Dosada05/tournament-payouts/events"
	"github.com/Dosada05/tournament-payouts/handlers"
	"github.com/Dosada05/tournament-payouts/payment"
	"github.com/Dosada05/tournament-payouts/repositories"
	api "github.com/Dosada05/tournament-payouts/routes"
	"github.com/Dosada05/tournament-payouts/services"
	"github.com/Dosada05/tournament-payouts/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

const (
	deadlineSchedulerInterval = 30 * time.Second
	reconciliationInterval    = 5 * time.Minute
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Инициализация загрузчика файлов (Cloudflare R2)
	cloudflareUploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	// Клиент платёжного шлюза
	paymentClient, err := payment.NewAPIClient(payment.APIClientConfig{
		BaseURL: cfg.PaymentAPIBaseURL,
		APIKey:  cfg.PaymentAPIKey,
	})
	if err != nil {
		logger.Error("failed to initialize payment API client", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("payment API client initialized")

	// Инициализация WebSocket Hub
	wsHub := events.NewHub()
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	depositRepo := repositories.NewPostgresDepositRepository(dbConn)
	distributionRepo := repositories.NewPostgresDistributionRepository(dbConn)
	ledger := repositories.NewPostgresCreditLedger(dbConn)
	txBeginner := repositories.NewSQLTxBeginner(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	emailService := services.NewEmailService(cfg)
	authService := services.NewAuthService(userRepo)
	userService := services.NewUserService(userRepo, ledger, logger)
	tournamentService := services.NewTournamentService(tournamentRepo, depositRepo, wsHub, logger)
	depositService := services.NewDepositService(
		txBeginner,
		depositRepo,
		tournamentRepo,
		userRepo,
		paymentClient,
		cloudflareUploader,
		wsHub,
		logger,
	)
	participantService := services.NewParticipantService(
		txBeginner,
		participantRepo,
		tournamentRepo,
		userRepo,
		ledger,
		emailService,
		wsHub,
		logger,
	)
	distributionService := services.NewDistributionService(
		distributionRepo,
		participantRepo,
		tournamentRepo,
		userRepo,
		paymentClient,
		emailService,
		wsHub,
		logger,
	)
	reconciliationService := services.NewReconciliationService(ledger, logger)
	logger.Info("Services initialized")

	// Планировщик перевода турниров в in_progress по дедлайну регистрации
	go func() {
		ticker := time.NewTicker(deadlineSchedulerInterval)
		defer ticker.Stop()
		logger.Info("Tournament deadline scheduler started", slog.Duration("interval", deadlineSchedulerInterval))

		if err := tournamentService.AutoAdvanceByDeadline(context.Background()); err != nil {
			logger.Error("Scheduler: initial run failed", slog.Any("error", err))
		}

		for range ticker.C {
			if err := tournamentService.AutoAdvanceByDeadline(context.Background()); err != nil {
				logger.Error("Scheduler: periodic run failed", slog.Any("error", err))
			}
		}
	}()

	// Сверка леджера: возврат списаний, оставшихся без регистрации участника
	go func() {
		ticker := time.NewTicker(reconciliationInterval)
		defer ticker.Stop()
		logger.Info("Ledger reconciliation scheduler started", slog.Duration("interval", reconciliationInterval))

		for range ticker.C {
			refunded, err := reconciliationService.Reconcile(context.Background())
			if err != nil {
				logger.Error("Reconciliation run failed", slog.Any("error", err))
				continue
			}
			if refunded > 0 {
				logger.Info("Reconciliation refunded orphaned entry fees", slog.Int("count", refunded))
			}
		}
	}()

	// Инициализация обработчиков HTTP
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	userHandler := handlers.NewUserHandler(userService)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	depositHandler := handlers.NewDepositHandler(depositService, cfg.PaymentWebhookSecret)
	participantHandler := handlers.NewParticipantHandler(participantService)
	distributionHandler := handlers.NewDistributionHandler(distributionService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		cfg.JWTSecretKey,
		authHandler,
		userHandler,
		tournamentHandler,
		depositHandler,
		participantHandler,
		distributionHandler,
		webSocketHandler,
	)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
