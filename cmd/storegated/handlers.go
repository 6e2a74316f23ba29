package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/storegate/internal/admission"
	"github.com/haasonsaas/storegate/internal/config"
	"github.com/haasonsaas/storegate/internal/gateway"
	"github.com/haasonsaas/storegate/internal/llm"
	"github.com/haasonsaas/storegate/internal/orchestrator"
	"github.com/haasonsaas/storegate/internal/session"
	"github.com/haasonsaas/storegate/internal/toolclient"
)

// runServe loads configuration, wires C1-C7, and serves until a shutdown
// signal arrives. Grounded on the teacher's cmd/nexus runServe (graceful
// shutdown via signal.NotifyContext + a bounded Shutdown context).
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.Default()
	logger.Info("starting storegated",
		"version", version,
		"commit", commit,
		"config", configPath,
		"shop_domain", cfg.ShopDomain,
		"llm_provider", cfg.LLM.Provider,
	)

	host, evictionCron := buildSessionHost(cfg, logger)
	if evictionCron != nil {
		defer evictionCron.Stop()
	}

	tools := toolclient.New(cfg.ShopDomain, cfg.InternalKey, logger,
		toolclient.WithCatalogDefaults(cfg.ToolClient.DefaultCtx, cfg.ToolClient.DefaultFirst))

	provider := buildProvider(cfg, logger)

	orch := &orchestrator.Orchestrator{
		Host:                host,
		Provider:            provider,
		Tools:               tools,
		Greeting:            orchestrator.GreetingConfig(cfg.Greeting),
		Logger:              logger,
		CustomerTokenSecret: cfg.CustomerTokenSecret,
	}

	adm := admission.New(admission.Config{Limit: cfg.Admission.Limit, Window: cfg.Admission.Window}, logger)

	routerCfg := gateway.Config{
		ShopifyAppSecret: cfg.ShopifyAppSecret,
		ShopKey:          cfg.ShopDomain,
		DevBypass:        cfg.DevBypass,
		CORS: gateway.CORSConfig{
			AllowedOrigin:  cfg.AllowedOrigin,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
		},
	}
	router := gateway.New(routerCfg, host, adm, orch, tools, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Handler(),
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutdown signal received, draining connections")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("storegated stopped gracefully")
	return nil
}

func buildSessionHost(cfg *config.Config, logger *slog.Logger) (*session.Host, *cron.Cron) {
	host := session.NewHost(nil, logger)
	c, err := session.StartEvictionSweep(host, cfg.Session.IdleEviction, "@every 5m", logger)
	if err != nil {
		logger.Warn("eviction sweep not started", "error", err)
		return host, nil
	}
	return host, c
}

func buildProvider(cfg *config.Config, logger *slog.Logger) llm.Provider {
	llmCfg := llm.Config{
		Model:        cfg.LLM.Model,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
		TopP:         cfg.LLM.TopP,
		IncludeUsage: cfg.LLM.IncludeUsage,
	}
	switch cfg.LLM.Provider {
	case "anthropic":
		return llm.NewAnthropicProvider(cfg.LLMAPIKey, llmCfg, logger)
	default:
		return llm.NewOpenAIProvider(cfg.LLMAPIKey, llmCfg, logger)
	}
}

// runStatus loads and validates configuration without starting the
// server, printing the resolved settings an operator would otherwise have
// to infer from environment variables.
func runStatus(ctx context.Context, configPath string, cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "shop_domain:   %s\n", cfg.ShopDomain)
	fmt.Fprintf(out, "server_addr:   %s\n", cfg.Server.Addr)
	fmt.Fprintf(out, "llm_provider:  %s\n", cfg.LLM.Provider)
	fmt.Fprintf(out, "llm_model:     %s\n", cfg.LLM.Model)
	fmt.Fprintf(out, "dev_bypass:    %t\n", cfg.DevBypass)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "validation:    FAILED (%v)\n", err)
		return err
	}
	fmt.Fprintln(out, "validation:    ok")
	return nil
}
