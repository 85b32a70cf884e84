package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Leganyst/dispatch-core/internal/auth"
	"github.com/Leganyst/dispatch-core/internal/cache"
	"github.com/Leganyst/dispatch-core/internal/config"
	"github.com/Leganyst/dispatch-core/internal/db"
	"github.com/Leganyst/dispatch-core/internal/grpcapi"
	"github.com/Leganyst/dispatch-core/internal/httpapi"
	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
	"github.com/Leganyst/dispatch-core/internal/service"
)

func main() {
	if err := run(); err != nil {
		logger.New(logger.Options{}).Error("dispatch-core stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config from env (.env is optional).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// 2. Database and migrations.
	gormDB, err := db.NewGormDB(cfg.DB, log)
	if err != nil {
		return err
	}
	if err := model.AutoMigrate(gormDB); err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// 3. Cache: redis when configured, otherwise a no-op.
	var c cache.Cache = cache.Nop{}
	if cfg.Cache.Enabled() {
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Username: cfg.Cache.RedisUsername,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL,
		})
		defer rc.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			log.Warn("redis unavailable, reads go to the database until it recovers", "addr", cfg.Cache.RedisAddr, "err", err)
		}
		cancel()
		c = rc
	}

	// 4. Repositories and services.
	repos := repository.New(gormDB)
	authSvc := service.NewAuthService(repos, auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL), service.AuthOptions{
		SessionTTL:      cfg.Auth.SessionTTL,
		VerificationTTL: cfg.Auth.VerificationTTL,
	}, log)
	orders := service.NewOrderService(repos, c, log)
	sheets := service.NewDelegateSheetService(repos, c, cfg.Cache.TTL, log)

	// 5. HTTP.
	gin.SetMode(gin.ReleaseMode)
	handler := httpapi.New(httpapi.Deps{
		Auth:    authSvc,
		Cities:  service.NewCityService(repos, log),
		Drivers: service.NewDriverService(repos, log),
		Orders:  orders,
		Sheets:  sheets,
		Reports: service.NewReportService(repos, c, cfg.Cache.TTL, log),
		Checks: map[string]httpapi.Pinger{
			"db":    httpapi.PingFunc(sqlDB.PingContext),
			"cache": c,
		},
		Log: log,
	})
	httpServer := httpapi.NewServer(cfg.Server.HTTPAddr, handler)

	// 6. gRPC.
	grpcServer, healthServer := grpcapi.New(grpcapi.Deps{Auth: authSvc, Sheets: sheets, Orders: orders, Log: log})
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Info("grpc server listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go purgeLoop(ctx, authSvc, cfg.Server.PurgeInterval, log)

	// 7. Graceful shutdown on signal or server failure.
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server failed, shutting down", "err", err)
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	return nil
}

// purgeLoop deletes expired sessions and verification tokens every interval.
func purgeLoop(ctx context.Context, authSvc *service.AuthService, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, _, err := authSvc.PurgeExpired(ctx, now.UTC()); err != nil {
				log.ErrorContext(ctx, "purge expired credentials", "err", err)
			}
		}
	}
}
