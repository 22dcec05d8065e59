// ABOUTME: CLI entrypoint for the swarmd orchestrator daemon: loads config, boots the manager, and serves HTTP.
// ABOUTME: Wires SwarmManager, CronScheduler, the SQLite descriptor index, and the MCP tool bridge together.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/draphael89/swarmd/internal/config"
	"github.com/draphael89/swarmd/internal/eventbus"
	"github.com/draphael89/swarmd/internal/httpapi"
	"github.com/draphael89/swarmd/internal/rpc"
	"github.com/draphael89/swarmd/internal/runtime"
	"github.com/draphael89/swarmd/internal/store/index"
	"github.com/draphael89/swarmd/internal/swarm"
	"github.com/draphael89/swarmd/internal/toolbridge"

	"github.com/draphael89/swarmd/internal/cron"
)

var version = "dev"

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: construct logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	rpc.SetLogger(logger.Named("rpc"))
	runtime.SetLogger(logger.Named("runtime"))
	swarm.SetLogger(logger.Named("swarm"))
	cron.SetLogger(logger.Named("cron"))
	eventbus.SetLogger(logger.Named("eventbus"))
	httpapi.SetLogger(logger.Named("httpapi"))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: create data dir: %v\n", err)
		return 1
	}

	secrets, err := config.LoadSecrets(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load secrets: %v\n", err)
		return 1
	}

	idx, err := index.Open(filepath.Join(cfg.DataDir, "index.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open descriptor index: %v\n", err)
		return 1
	}
	defer idx.Close()

	bridge := toolbridge.New()
	defer bridge.Close()

	bus := eventbus.New()

	manager, err := swarm.New(swarm.Config{
		DataDir:            cfg.DataDir,
		ChildCommand:       cfg.ChildCommand,
		CwdRoots:           cfg.AllowedRoots,
		Bus:                bus,
		PrimaryManagerID:   cfg.PrimaryManagerID,
		PrimaryDisplayName: "primary",
		PrimaryCwd:         firstOrHome(cfg.AllowedRoots),
		PrimaryModel:       swarm.ModelSpec{Provider: cfg.DefaultProvider, ModelID: cfg.DefaultModel},
		ToolBridge:         bridge.Dispatch,
		Index:              idx,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: construct manager: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Boot(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: boot manager: %v\n", err)
		return 1
	}

	scheduler := cron.New(cfg.DataDir, cfg.PrimaryManagerID, func(ctx context.Context, managerID, message string) error {
		return manager.HandleUserMessage(ctx, message, swarm.UserMessageOptions{TargetAgentID: managerID})
	})
	go scheduler.Run(ctx, cfg.CronPollInterval)
	defer scheduler.Stop()

	server := httpapi.NewServer(manager, bus)
	httpServer := &http.Server{
		Addr:              cfg.Bind,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		cancel()
		httpServer.Close()
	}()

	printBootBanner(os.Stderr, bootSummary{
		Version:          version,
		Bind:             cfg.Bind,
		DataDir:          cfg.DataDir,
		AgentCount:       len(manager.ListAgents()),
		PrimaryManagerID: cfg.PrimaryManagerID,
		SecretCount:      len(secrets.Names()),
	})

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	return 0
}

func firstOrHome(roots []string) string {
	if len(roots) > 0 && strings.TrimSpace(roots[0]) != "" {
		return roots[0]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
