package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/velkovb/peerpay-backend/internal/api"
	"github.com/velkovb/peerpay-backend/internal/auth"
	"github.com/velkovb/peerpay-backend/internal/config"
	"github.com/velkovb/peerpay-backend/internal/db"
	"github.com/velkovb/peerpay-backend/internal/logger"
	"github.com/velkovb/peerpay-backend/internal/metrics"
	"github.com/velkovb/peerpay-backend/internal/middleware"
	"github.com/velkovb/peerpay-backend/internal/payments"
	"github.com/velkovb/peerpay-backend/internal/repository/postgres"
	"github.com/velkovb/peerpay-backend/internal/services"
	"github.com/velkovb/peerpay-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	metrics.Init()

	repos := postgres.NewRepositories(pool)
	wp := worker.NewPool(4)
	defer wp.Stop()

	tm := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	authorizer := payments.NewSimulatedAuthorizer(cfg.AuthApprovalRate)

	userSvc := services.NewUserService(repos.Users, tm)
	balanceSvc := services.NewBalanceService(repos.Balances)
	budgetSvc := services.NewBudgetService(repos.Budgets, repos.Users, repos.Transactions, repos.Transactor)
	transferSvc := services.NewTransferService(
		repos.Users, repos.Balances, repos.Budgets,
		repos.Transactions, repos.TransactionEvents, repos.Transactor,
		authorizer, wp, log,
		services.TransferConfig{
			DefaultCurrency: cfg.DefaultCurrency,
			AuthTimeout:     cfg.AuthTimeout,
		},
	)
	reportSvc := services.NewReportService(repos.Transactions)

	r := api.NewRouter(api.RouterDeps{
		Cfg:         cfg,
		UserSvc:     userSvc,
		BalanceSvc:  balanceSvc,
		BudgetSvc:   budgetSvc,
		TransferSvc: transferSvc,
		ReportSvc:   reportSvc,
		Auth:        middleware.NewAuthMiddleware(tm),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
