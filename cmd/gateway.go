package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trinity-cloud/drost/internal/auditlog"
	"github.com/trinity-cloud/drost/internal/config"
	"github.com/trinity-cloud/drost/internal/control"
	"github.com/trinity-cloud/drost/internal/evolution"
	"github.com/trinity-cloud/drost/internal/failover"
	"github.com/trinity-cloud/drost/internal/gatewaylifecycle"
	"github.com/trinity-cloud/drost/internal/orchestration"
	"github.com/trinity-cloud/drost/internal/providers"
	"github.com/trinity-cloud/drost/internal/sessionmgr"
	"github.com/trinity-cloud/drost/internal/store"
	"github.com/trinity-cloud/drost/internal/tools"
	"github.com/trinity-cloud/drost/internal/tracing"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the gateway: sessions, orchestration lanes, and the control API",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

// osExiter adapts os.Exit to gatewaylifecycle.Exiter.
type osExiter struct{}

func (osExiter) Exit(code int) { os.Exit(code) }

func runGateway() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		ServiceName:  cfg.Tracing.ServiceName,
	})
	if err != nil {
		slog.Warn("tracing.init_failed", "error", err)
	}
	defer tracer.Shutdown(ctx)

	workspaceDir := config.ExpandHome(cfg.Gateway.WorkspaceDir)
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "workspace dir: %v\n", err)
		os.Exit(1)
	}

	sessionsDir := config.ExpandHome(cfg.Sessions.Storage)
	st, err := store.New(sessionsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session store: %v\n", err)
		os.Exit(1)
	}

	adapters := map[string]providers.Adapter{}
	profiles := map[string]providers.Profile{}
	for id, p := range cfg.Providers.List {
		switch p.AdapterID {
		case "anthropic":
			adapters[id] = providers.NewAnthropicAdapter(p.APIKey)
		case "openai":
			adapters[id] = providers.NewOpenAIAdapter(p.APIKey)
		default:
			slog.Warn("gateway.unknown_adapter", "provider", id, "adapterId", p.AdapterID)
			continue
		}
		profiles[id] = providers.Profile{
			ID:            id,
			AdapterID:     p.AdapterID,
			Kind:          p.Kind,
			Family:        providers.Family(p.Family),
			BaseURL:       p.BaseURL,
			Model:         p.Model,
			AuthProfileID: p.AuthProfileID,
			WireQuirks:    p.WireQuirks,
		}
	}

	fo := failover.NewManager(failover.DefaultConfig())

	shellTool := tools.NewShellTool()
	shellTool.AllowCommandPrefixes = cfg.Tools.Shell.AllowCommandPrefixes
	shellTool.DenyCommandPrefixes = cfg.Tools.Shell.DenyCommandPrefixes
	webTool := tools.NewWebTool()
	webTool.RenderJS = cfg.Tools.Web.HeadlessRender

	lifecycle := gatewaylifecycle.New(gatewaylifecycle.RestartBudget{
		MaxRestarts: cfg.Gateway.RestartMaxRetries,
		Window:      time.Duration(cfg.Gateway.RestartWindowMin) * time.Minute,
	})
	restarter := &gatewaylifecycle.ToolRestarter{Gateway: lifecycle, Exit: osExiter{}, Intent: gatewaylifecycle.IntentSelfMod}
	controlRestarter := &gatewaylifecycle.ToolRestarter{Gateway: lifecycle, Exit: osExiter{}, Intent: gatewaylifecycle.IntentManual}

	agentTool := tools.NewAgentTool(func() tools.GatewayStatus {
		return tools.GatewayStatus{
			State:           string(lifecycle.State()),
			DegradedReasons: lifecycle.DegradedReasons(),
			Uptime:          lifecycle.Uptime().String(),
		}
	}, restarter)

	registry := tools.NewRegistry([]tools.Definition{
		tools.NewFileTool(),
		tools.NewCodeTool(),
		shellTool,
		webTool,
		agentTool,
	}, nil)

	toolRuntime := tools.NewRuntime(registry, tracer.Tracer())

	sessMgr := sessionmgr.New(st, adapters, profiles, fo, toolRuntime, sessionmgr.Config{
		MaxToolIterations: cfg.Gateway.MaxToolIterations,
		MaxToolCalls:      cfg.Gateway.MaxToolCalls,
		WorkspaceDir:      workspaceDir,
		ToolProfile:       tools.Profile(cfg.Tools.DefaultProfile),
		DeniedTools:       cfg.Tools.DeniedTools,
		AllowedTools:      cfg.Tools.AllowedTools,
	}, cfg.Providers.Default)

	snapshotStore := orchestration.NewSnapshotStore(config.ExpandHome(cfg.Orchestration.SnapshotPath))
	scheduler := orchestration.NewScheduler(snapshotStore)

	evoRunner := evolution.NewRunner(toolRuntime, workspaceDir, nil, 4)

	audit, err := auditlog.New(ctx, cfg.Control.AuditPostgresDSN, config.ExpandHome(cfg.Control.AuditFallbackPath))
	if err != nil {
		slog.Warn("auditlog.init_failed", "error", err)
	}

	controlSrv := control.New(control.Config{
		Addr:               cfg.Control.Addr,
		AdminTokens:        cfg.Control.AdminTokens,
		ReadOnlyTokens:     cfg.Control.ReadOnlyTokens,
		AllowLoopback:      cfg.Control.AllowLoopback,
		MutationsPerMinute: cfg.Control.MutationsPerMinute,
	}, sessMgr, scheduler, lifecycle, controlRestarter, evoRunner, toolRuntime, adapters, audit)

	steps := []gatewaylifecycle.StartStep{
		{Name: "restore_lanes", Run: func(ctx context.Context) error {
			return scheduler.Restore(func(sessionID string) orchestration.TurnFunc {
				return controlSrv.TurnFunc()
			})
		}},
		{Name: "watch_config", Run: func(ctx context.Context) error {
			return lifecycle.WatchConfig(cfgPath, func(reason string) {
				_, _ = lifecycle.RequestRestart(gatewaylifecycle.IntentSelfMod, reason)
			})
		}},
	}
	if err := lifecycle.Start(ctx, steps); err != nil {
		fmt.Fprintf(os.Stderr, "gateway start: %v\n", err)
		os.Exit(1)
	}

	tsCleanup, err := startTsnetListener(ctx, cfg.Control.Tailscale, controlSrv.Mux())
	if err != nil {
		slog.Warn("tsnet.listener_failed", "error", err)
	} else if tsCleanup != nil {
		defer tsCleanup()
	}

	slog.Info("gateway.listening", "addr", cfg.Control.Addr, "state", lifecycle.State())
	if err := controlSrv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "control api: %v\n", err)
	}

	scheduler.StopAll()
	lifecycle.Stop()
}
