package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/storefront/internal/app"
	"github.com/linemk/storefront/internal/app/handlers"
	"github.com/linemk/storefront/internal/cache"
	"github.com/linemk/storefront/internal/config"
	"github.com/linemk/storefront/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/storefront/internal/lib/logger"
	"github.com/linemk/storefront/internal/lib/logger/handlers/urllog"
	"github.com/linemk/storefront/internal/service"
	"github.com/linemk/storefront/internal/storage"
	"github.com/pkg/errors"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	productRepo := storage.NewProductRepository(application.DB)
	cartRepo := storage.NewCartRepository(log, application.DB)
	orderRepo := storage.NewOrderRepository(log, application.DB, productRepo)

	var cartCache cache.CartCache
	if application.Redis != nil {
		cartCache = cache.NewRedisCache(application.Redis, cfg.Redis.CartTTL)
	}

	authService := service.NewAuthService(log, userRepo, cfg.JWT.TokenTTLDuration(), cfg.JWT.Secret)
	catalogService := service.NewCatalogService(log, productRepo)
	cartService := service.NewCartService(log, cartRepo, productRepo, cartCache)
	orderService := service.NewOrderService(log, productRepo, orderRepo, cartService)

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Route("/api", func(r chi.Router) {
		r.Post("/users/register", handlers.RegisterHandler(log, authService))
		r.Post("/users/login", handlers.LoginHandler(log, authService))

		r.Get("/products", handlers.ListProductsHandler(log, catalogService))
		r.Get("/products/{id}", handlers.GetProductHandler(log, catalogService))

		r.Group(func(r chi.Router) {
			r.Use(jwtmiddleware.NewJWTMiddleware(cfg.JWT.Secret))
			// флаг admin сверяется с базой на каждый запрос
			r.Use(jwtmiddleware.RefreshIdentity(authService))

			r.Get("/users/profile", handlers.ProfileHandler(log, authService))

			r.Get("/cart", handlers.GetCartHandler(log, cartService))
			r.Post("/cart", handlers.UpsertCartHandler(log, cartService))
			r.Delete("/cart/{productId}", handlers.RemoveCartLineHandler(log, cartService))

			r.Post("/orders", handlers.PlaceOrderHandler(log, orderService))
			r.Get("/orders/myorders", handlers.MyOrdersHandler(log, orderService))
			r.Get("/orders/{id}", handlers.GetOrderHandler(log, orderService))
			r.Put("/orders/{id}/pay", handlers.PayOrderHandler(log, orderService))

			// админские маршруты
			r.Group(func(r chi.Router) {
				r.Use(jwtmiddleware.AdminOnly)
				r.Get("/users", handlers.ListUsersHandler(log, authService))
				r.Get("/orders", handlers.ListOrdersHandler(log, orderService))
				r.Get("/orders/unfulfilled", handlers.UnfulfilledOrdersHandler(log, orderService))
				r.Put("/orders/{id}/deliver", handlers.DeliverOrderHandler(log, orderService))
				r.Post("/orders/{id}/reconcile", handlers.ReconcileOrderHandler(log, orderService))
			})
		})
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
