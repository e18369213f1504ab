package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/orchestra-mcp/matchrelay/config"
	"github.com/orchestra-mcp/matchrelay/providers"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

func main() {
	// A missing .env is fine; the process environment wins either way.
	envErr := godotenv.Load()

	cfg := config.FromEnv()
	logger := newLogger(cfg)
	if envErr == nil {
		logger.Debug().Msg("loaded .env")
	}

	plugin := providers.NewRelayPlugin(cfg, logger)
	if err := plugin.Activate(); err != nil {
		logger.Fatal().Err(err).Msg("relay activation failed")
	}

	app := fiber.New(fiber.Config{AppName: "matchrelay"})
	app.Use(recoverer.New())
	plugin.RegisterRoutes(app)

	srv := &fasthttp.Server{
		Handler: plugin.Handler(app),
		Name:    "matchrelay",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr()).Msg("relay listening")
		errCh <- srv.ListenAndServe(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	if err := plugin.Deactivate(); err != nil {
		logger.Error().Err(err).Msg("relay deactivate error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
}

func newLogger(cfg *config.RelayConfig) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "matchrelay").Logger()
}
