package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"example.com/cartsync/internal/config"
	domcart "example.com/cartsync/internal/domain/cart"
	"example.com/cartsync/internal/infra/logger"
	"example.com/cartsync/internal/infra/metrics"
	"example.com/cartsync/internal/infra/persistence/mysql"
	"example.com/cartsync/internal/infra/persistence/postgres"
	"example.com/cartsync/internal/infra/persistence/redis"
	"example.com/cartsync/internal/infra/security"
	httpapi "example.com/cartsync/internal/interface/http"
	authuc "example.com/cartsync/internal/usecase/auth"
	cartuc "example.com/cartsync/internal/usecase/cart"
	productuc "example.com/cartsync/internal/usecase/product"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
	})

	err = run(cfg, log)
	if err != nil {
		log.Error("server stopped", zap.Error(err))
	}
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := mysql.Open(ctx, cfg.MySQL.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	cartRepo, closeStore, err := openCartStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	productRepo := mysql.NewProductRepository(db)
	userRepo := mysql.NewUserRepository(db)
	tokenSvc := security.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiration)
	passwords, err := security.NewBcryptChecker(bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m := metrics.New("cartsync")

	api := httpapi.NewAPI(httpapi.Dependencies{
		AuthService:    authuc.NewService(userRepo, passwords, tokenSvc),
		ProductService: productuc.NewService(productRepo),
		CartService:    cartuc.NewService(cartRepo, productRepo),
		TokenService:   tokenSvc,
		Logger:         log,
		Observer:       m,
		MetricsHandler: m.Handler(),
		RateLimit:      cfg.HTTP.RateLimit,
		RateBurst:      cfg.HTTP.RateBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      api.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("cart_store", cfg.CartStore),
			zap.String("env", cfg.Env),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openCartStore picks the cart backing store. MySQL shares the product
// database; the other stores open their own connection.
func openCartStore(ctx context.Context, cfg *config.Config, db *sql.DB) (domcart.Repository, func(), error) {
	switch cfg.CartStore {
	case config.StorePostgres:
		pool, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewCartRepository(pool), pool.Close, nil
	case config.StoreRedis:
		client, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewCartRepository(client, cfg.Redis.CartTTL), func() { _ = client.Close() }, nil
	default:
		return mysql.NewCartRepository(db), func() {}, nil
	}
}
