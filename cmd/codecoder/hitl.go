package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zero-bot/codecoder/internal/approval"
	"github.com/zero-bot/codecoder/internal/config"
	"github.com/zero-bot/codecoder/internal/renderer"
	"github.com/zero-bot/codecoder/internal/telemetry"
)

var hitlCmd = &cobra.Command{
	Use:   "hitl",
	Short: "Human-in-the-Loop Approval Engine",
}

var hitlStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the HitL HTTP service",
	RunE:  runHITLStart,
}

func init() {
	hitlCmd.AddCommand(hitlStartCmd)
	rootCmd.AddCommand(hitlCmd)
}

func runHITLStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir, err := configDataDir()
	if err != nil {
		return err
	}

	store, err := openApprovalStore(cmd.Context(), cfg, dir)
	if err != nil {
		return err
	}

	logger := newLogger("hitl")

	// Every configured, enabled channel gets a GenericRenderer talking to
	// the shared channels-service endpoint (spec.md §4.2), with richer
	// dedicated renderers for the two platforms the pack carries a
	// library for.
	transport := renderer.NewChannelTransport(cfg.Gateway.CodecoderEndpoint)
	registry := approval.MapRegistry{}
	for name, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		switch name {
		case "telegram":
			registry[name] = renderer.NewTelegramRenderer(transport)
		case "slack":
			registry[name] = renderer.NewSlackRenderer(transport)
		default:
			registry[name] = renderer.NewGenericRenderer(name, transport)
		}
	}
	// cli is always reachable even if not listed under channels in config,
	// since `channel start cli` doesn't require credentials.
	if _, ok := registry["cli"]; !ok {
		registry["cli"] = renderer.NewGenericRenderer("cli", transport)
	}

	svc := approval.NewService(store, registry, approval.WithServiceLogger(logger))

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux, "/api/v1/hitl")

	resolvedPort := resolvePort(cfg.Gateway.Host, cfg.Gateway.Port, logger)
	addr := bindAddress(cfg.Gateway.Host, resolvedPort, cfg.Gateway.AllowPublicBind, logger)
	logger.Info("hitl service listening", map[string]interface{}{"addr": addr})
	return http.ListenAndServe(addr, telemetry.TracingMiddleware("hitl")(mux))
}

func openApprovalStore(ctx context.Context, cfg *config.Config, dir string) (approval.Store, error) {
	path := cfg.HITL.StoragePath
	if path == "" {
		return approval.NewMemoryStore(), nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	store, err := approval.NewSQLiteStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open hitl store: %w", err)
	}
	return store, nil
}
