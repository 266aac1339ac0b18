// Команда reconciler доводит до конца заказы, оформление которых прервалось
// после записи: списывает оставшиеся остатки и закрывает заказ.
// Запускается разово, например из cron.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/linemk/storefront/internal/app"
	"github.com/linemk/storefront/internal/config"
	"github.com/linemk/storefront/internal/lib/logger"
	"github.com/linemk/storefront/internal/service"
	"github.com/linemk/storefront/internal/storage"
	"github.com/pkg/errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.MustLoad()

	log := logger.SetupLogger(cfg.Env)

	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	productRepo := storage.NewProductRepository(application.DB)
	orderRepo := storage.NewOrderRepository(log, application.DB, productRepo)
	// корзины при сверке не очищаются
	orderService := service.NewOrderService(log, productRepo, orderRepo, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := orderService.ReconcilePending(ctx)
	if err != nil {
		log.Error("reconcile failed", slog.Any("error", err))
		return 1
	}

	log.Info("reconcile finished",
		slog.Int("checked", report.Checked),
		slog.Int("completed", report.Completed),
		slog.Int("failed", len(report.Failed)),
	)
	if len(report.Failed) > 0 {
		for _, id := range report.Failed {
			log.Warn("order still unfulfilled", slog.String("orderID", id.String()))
		}
		return 2
	}
	return 0
}
