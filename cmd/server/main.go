package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"btcpay-bridge/internal/config"
	"btcpay-bridge/internal/db"
	"btcpay-bridge/internal/lock"
	"btcpay-bridge/internal/logger"
	"btcpay-bridge/internal/metrics"
	"btcpay-bridge/internal/middleware"
	"btcpay-bridge/internal/notify"
	"btcpay-bridge/internal/order"
	"btcpay-bridge/internal/payment"
	"btcpay-bridge/internal/payment/webhook"
	"btcpay-bridge/internal/reconcile"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	initDBFunc      = db.InitDB
	initRedisFunc   = db.NewRedisClient
	startServerFunc = func(addr string, handler http.Handler) error {
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// Notify requests may wait on a 30s invoice fetch.
			WriteTimeout: 45 * time.Second,
		}
		return srv.ListenAndServe()
	}
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	rdb, err := initRedisFunc(context.Background(), cfg)
	if err != nil {
		logger.L().Warn("Redis unavailable, reconcile lock disabled", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	handler := newServer(cfg, database, rdb)

	logger.L().Info("Server running", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
	return startServerFunc(":"+cfg.AppPort, handler)
}

func newServer(cfg *config.Config, database *sql.DB, rdb *redis.Client) http.Handler {
	paymentRepo := payment.NewRepository(database)
	gateway := payment.NewBTCPayGateway()
	methods := payment.NewRegistry(payment.NewBTCPayMethod(gateway))
	urls := payment.NewURLBuilder(cfg.AppURL)

	orderRepo := order.NewRepository(database)
	orderSvc := order.NewService(orderRepo, paymentRepo, methods, urls)

	var locker lock.Locker = lock.Nop{}
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb)
	}
	notifier := notify.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramAdminChatIDs)
	reconciler := reconcile.NewReconciler(orderSvc, paymentRepo, notifier, locker)

	if cfg.InternalSecretKey == "" && cfg.ServiceJWTSecret == "" {
		logger.L().Warn("No service credentials configured, checkout requests will be rejected")
	}
	serviceAuth := middleware.ServiceAuth(cfg.InternalSecretKey, cfg.ServiceJWTSecret)

	h := webhook.NewHandler(paymentRepo, methods, reconciler, orderSvc, &metrics.Webhook{})
	return setupRouter(h.Notify, h.Checkout, h.Stats, serviceAuth)
}

// The rate limiter keys on the socket address; forwarded-for headers are not trusted.
func setupRouter(notifyHandler, checkoutHandler, statsHandler http.HandlerFunc, serviceAuth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.RecoverMiddleware)
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.RateLimitMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/debug/stats", statsHandler)

	// BTCPay posts to the URL the invoice was created with; both forms are live.
	r.Post("/api/v1/guest/payment/notify/{method}/{uuid}", notifyHandler)
	r.Post("/payment/notify/{method}/{uuid}", notifyHandler)

	r.With(serviceAuth).Post("/api/v1/order/checkout", checkoutHandler)

	return r
}
