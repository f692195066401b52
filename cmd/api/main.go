package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"posemind/internal/bootstrap"
	"posemind/internal/http/handlers"
	httpapi "posemind/internal/http/httpapi"
	"posemind/internal/infra"
	"posemind/internal/infra/geoip"
	"posemind/internal/metrics"
)

func main() {
	// Optional .env
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	flush, err := infra.InitSentry(cfg.SentryDSN, cfg.AppEnv)
	if err != nil {
		logger.Warn().Err(err).Msg("sentry disabled")
	}
	defer flush()

	ctx := context.Background()
	collector := metrics.NewCollector()

	components, err := bootstrap.Build(ctx, cfg, logger, collector)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire pipeline")
	}
	defer components.Close()

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	if resolver != nil {
		defer resolver.Close()
	}

	if !cfg.HasModelCredentials() {
		logger.Warn().Msg("model API keys missing; pose endpoints will answer 500")
	}
	logger.Info().
		Str("vision_model", components.Chat.Model()).
		Str("image_model", components.Images.Model()).
		Str("image_base_url", components.Images.BaseURL()).
		Int("poses", cfg.NumPoses).
		Int("daily_limit", cfg.DailyUsageLimit).
		Str("usage_store", cfg.UsageStore).
		Str("uploads", components.Uploads.BasePath()).
		Str("results", components.Results.BasePath()).
		Msg("pipeline ready")

	app := handlers.NewApp(cfg, logger, components.Service, components.Uploads, components.Results)
	router := httpapi.NewRouter(app, httpapi.Deps{Logger: logger, Metrics: collector, GeoIP: resolver})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
