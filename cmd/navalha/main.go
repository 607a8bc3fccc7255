// Package main запускает HTTP-сервер кошелька барбершопа.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LopesIA/navalhabackend/internal/config"
	"github.com/LopesIA/navalhabackend/internal/handler"
	"github.com/LopesIA/navalhabackend/internal/middleware"
	"github.com/LopesIA/navalhabackend/internal/notification"
	"github.com/LopesIA/navalhabackend/internal/pagbank"
	"github.com/LopesIA/navalhabackend/internal/repository"
	"github.com/LopesIA/navalhabackend/internal/scheduler"
	"github.com/LopesIA/navalhabackend/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var gateway service.Gateway
	if cfg.PagBankAddress != "" {
		gateway = pagbank.NewClient(cfg.PagBankAddress, cfg.PagBankToken)
	}

	var pusher service.Pusher
	if cfg.PushAddress != "" {
		pusher = notification.NewDispatcher(cfg.PushAddress, cfg.PushAPIKey)
	}

	svc := service.NewService(repo, gateway, pusher, cfg.WebhookURL, logger)
	defer svc.Close()

	signature := middleware.NewSignatureMiddleware(cfg.WebhookSecret)
	h := handler.NewHandler(svc, logger, signature)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновые задачи обслуживания состояния лояльности
	sched := scheduler.New(logger)
	sched.Every(ctx, time.Hour, "purge-expired-bonuses", func(ctx context.Context) error {
		purged, err := repo.PurgeExpiredBonuses(ctx, time.Now())
		if err != nil {
			return err
		}
		if purged > 0 {
			logger.Info("expired bonuses purged", zap.Int64("count", purged))
		}
		return nil
	})
	sched.Every(ctx, time.Hour, "expire-vip", func(ctx context.Context) error {
		expired, err := repo.ExpireVIP(ctx, time.Now())
		if err != nil {
			return err
		}
		if expired > 0 {
			logger.Info("vip flags expired", zap.Int64("count", expired))
		}
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting navalha wallet server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		sched.Wait()
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
