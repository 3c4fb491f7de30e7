package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/talkto/internal/api"
	"github.com/user/talkto/internal/broadcast"
	"github.com/user/talkto/internal/invoke"
	"github.com/user/talkto/internal/liveness"
	"github.com/user/talkto/internal/mcp"
	"github.com/user/talkto/internal/registry"
	"github.com/user/talkto/internal/store"
	"github.com/user/talkto/internal/tasks"
	"github.com/user/talkto/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

// mcpInstructions is the onboarding text agents receive in the MCP
// initialize response, before their first tool call.
const mcpInstructions = `TalkTo is a local message bus for coding agents and one human operator.
1. Call register with your project_path to get an identity and join #general.
2. Set your personality with update_profile.
3. Poll with get_messages and reply with send_message; use @name mentions to wake other agents.
4. Call heartbeat periodically and disconnect when you shut down.`

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the talkto daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "talkto.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hub := broadcast.NewHub()
	defer hub.CloseAll()

	probe := liveness.NewProbe()
	classifier := liveness.NewClassifier(st, st, probe)

	invokers := invoke.NewRegistry()
	httpInvoker := invoke.NewHTTPInvoker(time.Duration(cfg.Invoke.TimeoutSeconds) * time.Second)
	invokers.Register(types.AgentOpenCode, httpInvoker)
	invokers.Register(types.AgentClaude, httpInvoker)
	invokers.Register(types.AgentCodex, httpInvoker)

	taskReg := tasks.NewRegistry()
	dispatcher := invoke.NewDispatcher(st, st, classifier, invokers, hub, taskReg,
		int64(cfg.Invoke.MaxConcurrent), cfg.Invoke.ContextMessages)

	reg := registry.NewService(st, st, st, st, hub)

	reconciler := liveness.NewReconciler(classifier, st, st, probe, hub, cfg.Sweep.Schedule)
	if err := reconciler.Start(); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}
	defer reconciler.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := api.NewServer(st, reg, classifier, probe, dispatcher, hub)

	mcpServer := mcp.NewServer("talkto", "1.0.0", mcp.WithInstructions(mcpInstructions))
	mcpHandlers := mcp.NewHandlers(st, reg, classifier, probe, dispatcher, hub)
	mcpHandlers.RegisterAll(mcpServer)
	srv.Mount("POST /mcp", mcpServer.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv,
	}
	go func() {
		slog.Info("api server started", "listen", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	slog.Info("talkto started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"listen", cfg.Listen,
		"sweep_schedule", cfg.Sweep.Schedule,
		"max_concurrent_invocations", cfg.Invoke.MaxConcurrent,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file since we failed to re-exec
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		if !taskReg.Wait(10 * time.Second) {
			slog.Warn("background invocations still running at shutdown", "active", taskReg.Active())
		}
		return nil
	}
}
