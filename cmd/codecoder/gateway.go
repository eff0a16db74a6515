package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zero-bot/codecoder/internal/audit"
	"github.com/zero-bot/codecoder/internal/config"
	"github.com/zero-bot/codecoder/internal/gateway"
	"github.com/zero-bot/codecoder/internal/gatewaydb"
	"github.com/zero-bot/codecoder/internal/logging"
	"github.com/zero-bot/codecoder/internal/port"
	"github.com/zero-bot/codecoder/internal/telemetry"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "API Gateway: auth, proxy dispatcher, parallel inference fan-out",
}

var gatewayStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway HTTP server",
	RunE:  runGatewayStart,
}

func init() {
	gatewayCmd.AddCommand(gatewayStartCmd)
	rootCmd.AddCommand(gatewayCmd)
}

func runGatewayStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir, err := configDataDir()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := gatewaydb.NewStore(ctx, filepath.Join(dir, "gateway.db"))
	if err != nil {
		return fmt.Errorf("open gateway store: %w", err)
	}

	auditStore, err := openAuditStore(ctx, cfg, dir)
	if err != nil {
		return err
	}

	logger := newLogger("gateway")

	secret := cfg.Codecoder.APIKey
	if secret == "" {
		secret = "codecoder-dev-secret"
		logger.Warn("no codecoder.api_key configured; using an insecure development signing secret", nil)
	}
	auth := gateway.NewAuthenticator(secret, cfg.TokenExpiry())

	upstream := cfg.Providers.Ollama.BaseURL
	if upstream == "" {
		upstream = "http://localhost:11434"
	}
	proxyOpts := []gateway.ProxyOption{gateway.WithProxyLogger(logger)}
	if cfg.Gateway.RateLimiting {
		limiter, err := rateLimiterFor(cfg, logger)
		if err != nil {
			return err
		}
		proxyOpts = append(proxyOpts, gateway.WithProxyRateLimiter(limiter))
	}
	proxy, err := gateway.NewProxy("/api/v1/proxy", upstream, store, proxyOpts...)
	if err != nil {
		return fmt.Errorf("build proxy: %w", err)
	}

	gw := gateway.NewGateway(store, auth, proxy, gateway.WithGatewayLogger(logger))

	mux := http.NewServeMux()
	gw.RegisterRoutes(mux, "/api/v1")
	audit.NewHandlers(auditStore, audit.WithHandlersLogger(logger)).RegisterRoutes(mux, "/api/v1/audit")

	resolvedPort := resolvePort(cfg.Gateway.Host, cfg.Gateway.Port, logger)
	addr := bindAddress(cfg.Gateway.Host, resolvedPort, cfg.Gateway.AllowPublicBind, logger)
	logger.Info("gateway listening", map[string]interface{}{"addr": addr})
	return http.ListenAndServe(addr, telemetry.TracingMiddleware("gateway")(mux))
}

// rateLimiterFor picks a Redis-backed limiter when gateway.redis_url is
// configured, falling back to the in-memory per-process limiter
// otherwise (spec §4.15).
func rateLimiterFor(cfg *config.Config, logger logging.Logger) (gateway.RateLimiter, error) {
	if cfg.Gateway.RedisURL == "" {
		return gateway.NewInMemoryRateLimiter(cfg.Gateway.RateLimitRPM), nil
	}
	limiter, err := gateway.NewRedisRateLimiter(cfg.Gateway.RedisURL, cfg.Gateway.RateLimitRPM)
	if err != nil {
		return nil, fmt.Errorf("build redis rate limiter: %w", err)
	}
	logger.Info("gateway rate limiting backed by redis", map[string]interface{}{"redis_url": cfg.Gateway.RedisURL})
	return limiter, nil
}

// bindAddress enforces the loopback-only default (spec.md §6.4):
// AllowPublicBind must be explicitly set before a non-loopback host is
// honoured.
func bindAddress(host string, resolvedPort int, allowPublicBind bool, logger logging.Logger) string {
	if host == "" {
		host = "127.0.0.1"
	}
	if !allowPublicBind && host != "127.0.0.1" && host != "localhost" {
		logger.Warn("allow_public_bind is false; forcing loopback bind", map[string]interface{}{"configured_host": host})
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, resolvedPort)
}

// resolvePort lets a gateway.port of 0 mean "auto-discover a free port",
// for local development where a fixed 3000 may already be taken.
func resolvePort(host string, configuredPort int, logger logging.Logger) int {
	if configuredPort != 0 {
		return configuredPort
	}
	pm := port.NewPortManagerForBind(host, 0, "8080-8090", logger)
	return pm.DeterminePort()
}

// configDataDir returns the directory backing this process's persisted
// state (spec.md §6.5): the same directory config.Load reads from.
func configDataDir() (string, error) {
	if configDirFlag != "" {
		return configDirFlag, nil
	}
	return config.DefaultConfigDir()
}

func openAuditStore(ctx context.Context, cfg *config.Config, dir string) (audit.Store, error) {
	if cfg.Audit.AuditDBPath == "" {
		return audit.NewMemoryStore(audit.DefaultMaxEntries), nil
	}
	path := cfg.Audit.AuditDBPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return audit.NewSQLiteStore(ctx, path, audit.DefaultMaxEntries)
}
