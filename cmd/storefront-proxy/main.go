package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"storefront-proxy/internal/client"
	"storefront-proxy/internal/config"
	"storefront-proxy/internal/handler"
	"storefront-proxy/internal/metrics"
	"storefront-proxy/internal/middleware"
	"storefront-proxy/internal/router"
	"storefront-proxy/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Process exit codes.
const (
	exitStartup   = 1
	exitAddrInUse = 2
)

const shutdownTimeout = 15 * time.Second

// errAddressInUse marks a listen failure caused by another process holding the port.
var errAddressInUse = errors.New("address already in use")

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("storefront-proxy"),
		kong.Description("Reverse proxy for the storefront microservices, with static file serving."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	os.Exit(run(newApp(&cli)))
}

// newApp builds the application graph for the parsed command line.
func newApp(cli *config.CLI) *fx.App {
	return fx.New(
		fx.WithLogger(newFxLogger),
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			router.NewFromConfig,
			newMetrics,
			newEcho,
			client.NewUpstreamClient,
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			handler.NewStaticHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, logStartup, startServer),
	)
}

// run starts app, blocks until a shutdown signal and returns the exit code.
func run(app *fx.App) int {
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront-proxy: %v\n", err)
		return exitStartup
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "storefront-proxy: %v\n", err)
		if errors.Is(err, errAddressInUse) {
			return exitAddrInUse
		}
		return exitStartup
	}

	sig := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "storefront-proxy: shutdown: %v\n", err)
		return exitStartup
	}
	return sig.ExitCode
}

func newFxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newMetrics(cfg *config.Config, r *router.Router) *metrics.Metrics {
	known := r.Prefixes()
	if cfg.Metrics.Enabled {
		known = append(known, cfg.Metrics.Path)
	}
	return metrics.New(known...)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.NewErrorHandler(logger)

	// Inbound timeouts to mitigate slow-client attacks. The write timeout
	// leaves room for the full upstream timeout plus the response write.
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second + 10*time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	// Logging and metrics wrap Recover so a panicking request is still
	// recorded with the 500 it was answered with.
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered",
				"err", err,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"stack", string(stack),
			)
			return err
		},
	}))
	e.Use(middleware.CORS(cfg.CORS))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

// logStartup records the effective configuration: profile, route table and static root.
func logStartup(cfg *config.Config, r *router.Router, logger *slog.Logger) {
	source := cfg.FilePath()
	if source == "" {
		source = "built-in defaults"
	}
	logger.Info("configuration loaded",
		"source", source,
		"profile", cfg.Server.Profile,
		"upstream_timeout_s", cfg.Upstream.TimeoutSeconds,
		"api_prefix", cfg.Server.APIPrefix,
	)
	for _, route := range r.Routes() {
		logger.Info("proxy route", "prefix", route.Prefix+"/*", "origin", route.Origin)
	}
	if cfg.StaticEnabled() {
		logger.Info("serving static files", "root", cfg.Static.Root, "no_cache", cfg.Static.NoCache)
	} else {
		logger.Info("static file serving disabled; non-API paths return 405")
	}
	if cfg.Metrics.Enabled {
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return bindError(addr, cfg.Server.Port, err, logger)
			}
			logger.Info("starting server", "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}

// bindError classifies a listen failure, reporting a busy port distinctly.
func bindError(addr string, port int, err error, logger *slog.Logger) error {
	if errors.Is(err, syscall.EADDRINUSE) {
		logger.Error("port is already in use",
			"addr", addr,
			"hint", fmt.Sprintf("try a different port, e.g. storefront-proxy %d", port+1),
		)
		return fmt.Errorf("bind %s: %w", addr, errAddressInUse)
	}
	return fmt.Errorf("bind %s: %w", addr, err)
}
