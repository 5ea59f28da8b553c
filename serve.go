package main

// serve.go — wiring configuration into prover clients, sessions, the file watcher and the MCP server.

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"pkt.systems/pslog"

	"github.com/sanjit/pieuvre-mcp/internal/config"
	"github.com/sanjit/pieuvre-mcp/internal/pieuvre"
	"github.com/sanjit/pieuvre-mcp/internal/telemetry"
)

func runServe(ctx context.Context, cfgPath string, extraArgs []string) error {
	logger := pslog.Ctx(ctx)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Setup(ctx, "pieuvre-mcp", version, telemetry.Options{
		Enabled:  cfg.OTelEnabled,
		Endpoint: cfg.OTelEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	sm := newStateManager(cfg, extraArgs, logger)
	defer func() {
		if err := sm.Shutdown(); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
	}()

	var watcher *pieuvre.Watcher
	if cfg.Watch {
		watcher, err = pieuvre.NewWatcher(cfg.WatchDebounce, func(ctx context.Context, path string) {
			pieuvre.Resync(ctx, sm, path)
		}, logger.With("component", "watch"))
		if err != nil {
			return err
		}
		defer func() { _ = watcher.Stop() }()
		go watcher.Run(ctx)
	}

	server := newServer(sm, watcher)
	logger.Info("serving MCP over stdio", "prover", cfg.ProverPath, "watch", cfg.Watch)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newServer(sm *pieuvre.StateManager, watcher *pieuvre.Watcher) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "pieuvre-mcp",
		Version: version,
	}, nil)
	registerTools(server, sm, watcher)
	return server
}

// newStateManager builds the session manager. Every document gets its own
// prover process started with the configured command line.
func newStateManager(cfg config.Config, extraArgs []string, logger pslog.Logger) *pieuvre.StateManager {
	args := append(append([]string(nil), cfg.ProverArgs...), extraArgs...)
	tags := pieuvre.Tags{
		Ready: cfg.ReadyTag,
		Begin: cfg.BeginTag,
		End:   cfg.EndTag,
		Error: cfg.ErrorTag,
	}
	return pieuvre.NewStateManager(pieuvre.ManagerConfig{
		NewClient: func(path string) pieuvre.Commander {
			return pieuvre.NewClient(pieuvre.ClientConfig{
				Path:              cfg.ProverPath,
				Args:              args,
				Tags:              tags,
				Transcript:        openTranscript(cfg.Transcript, logger),
				TranscriptEntries: cfg.TranscriptLines,
				Logger:            logger.With("file", path),
			})
		},
		StartTimeout:   cfg.StartTimeout,
		CommandTimeout: cfg.CommandTimeout,
		Logger:         logger,
	})
}

// openTranscript opens the transcript file for appending. Each prover gets
// its own handle, which the client closes when it stops.
func openTranscript(path string, logger pslog.Logger) io.Writer {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warn("transcript disabled", "path", path, "error", err)
		return nil
	}
	return f
}
