package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"cellflow/internal/aibridge"
	"cellflow/internal/command"
	"cellflow/internal/config"
	"cellflow/internal/db"
	"cellflow/internal/eventlog"
	"cellflow/internal/events"
	"cellflow/internal/logging"
	"cellflow/internal/notebook"
	"cellflow/internal/runtime"
	"cellflow/internal/scheduler"
	"cellflow/internal/state"
)

var version = "dev"

const agentInstructions = "You are a notebook assistant. Use the tools to inspect, edit and " +
	"execute notebook cells. Prefer editing existing cells over creating duplicates. When you " +
	"are done, reply with a short summary of what changed."

var out io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig:   loadConfig,
		RunServe:     runServe,
		RunRuntime:   runRuntime,
		RunAgent:     runAgent,
		RunMigrateUp: runMigrateUp,
	})
	if err := app.RunContext(ctx, os.Args); err != nil {
		logging.NewLogger(logging.Options{Component: "main"}).Error("exit", "error", err, "version", version)
		os.Exit(1)
	}
}

// loadConfig reads config.toml and pins a notebook id on first run so that
// serve, runtime and agent invocations agree on the log they share.
func loadConfig() (config.Config, error) {
	dir, err := config.DefaultConfigDir()
	if err != nil {
		return config.Config{}, err
	}
	store := config.NewStore(dir)
	cfg, err := store.LoadOrInit()
	if err != nil {
		return config.Config{}, err
	}
	if strings.TrimSpace(cfg.NotebookID) == "" {
		cfg.NotebookID = uuid.NewString()
		if err := store.Save(cfg); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "serve"})

	gdb, err := openNotebookDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	store, err := state.NewStore(gdb)
	if err != nil {
		return err
	}
	log, err := eventlog.Open(gdb, cfg.NotebookID)
	if err != nil {
		return err
	}
	defer log.Close()

	projector, err := state.NewProjector(store, logger)
	if err != nil {
		return err
	}
	detach, err := projector.Follow(log)
	if err != nil {
		return err
	}
	defer detach()

	sched, err := scheduler.New(log, store, logger)
	if err != nil {
		return err
	}
	go func() {
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	server := eventlog.NewServer(log, logger)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("serving", "addr", cfg.ListenAddr, "notebookId", cfg.NotebookID, "version", version)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runRuntime(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "runtime"})

	remote, err := eventlog.Dial(ctx, cfg.RelayURL, cfg.NotebookID, logger)
	if err != nil {
		return err
	}
	defer remote.Close()

	store, detach, err := followIntoMemory(remote, logger)
	if err != nil {
		return err
	}
	defer detach()

	executor, err := buildExecutor(cfg, remote, store)
	if err != nil {
		return err
	}
	runtimeID := strings.TrimSpace(cfg.Runtime.ID)
	if runtimeID == "" {
		runtimeID = uuid.NewString()
	}
	agent, err := runtime.NewAgent(runtime.Options{
		Log:         remote,
		Store:       store,
		Logger:      logger,
		RuntimeID:   runtimeID,
		RuntimeType: cfg.Runtime.Type,
		Capabilities: events.SessionCapabilities{
			CanExecuteCode: cfg.Runtime.CanCode,
			CanExecuteSQL:  cfg.Runtime.CanSQL,
			CanExecuteAI:   cfg.Runtime.CanAI,
		},
		AiModels: cfg.Runtime.AiModels,
		Executor: executor,
	})
	if err != nil {
		return err
	}
	return agent.Run(ctx)
}

func runAgent(ctx context.Context, cfg config.Config, prompt string) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "agent"})

	remote, err := eventlog.Dial(ctx, cfg.RelayURL, cfg.NotebookID, logger)
	if err != nil {
		return err
	}
	defer remote.Close()

	store, detach, err := followIntoMemory(remote, logger)
	if err != nil {
		return err
	}
	defer detach()

	runner, err := buildLoopRunner(cfg, remote, store, "agent")
	if err != nil {
		return err
	}
	answer, err := runner.Run(ctx, prompt)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", answer)
	return nil
}

func runMigrateUp(ctx context.Context, cfg config.Config) error {
	_ = ctx
	gdb, err := openNotebookDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	return state.MigrateUp(gdb)
}

func openNotebookDB(cfg config.Config) (*gorm.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return db.OpenSQLite(filepath.Join(cfg.DataDir, cfg.NotebookID+".db"))
}

// followIntoMemory materializes the remote log into an in-memory store, the
// local read model for runtime and agent processes.
func followIntoMemory(log eventlog.Log, logger *slog.Logger) (*state.Store, func(), error) {
	gdb, err := db.OpenMemory()
	if err != nil {
		return nil, nil, err
	}
	store, err := state.NewStore(gdb)
	if err != nil {
		return nil, nil, err
	}
	projector, err := state.NewProjector(store, logger)
	if err != nil {
		return nil, nil, err
	}
	detach, err := projector.Follow(log)
	if err != nil {
		return nil, nil, err
	}
	return store, detach, nil
}

func buildExecutor(cfg config.Config, log eventlog.Log, store *state.Store) (runtime.Executor, error) {
	if cfg.Runtime.Type != "ai" {
		return runtime.EchoExecutor{}, nil
	}
	runner, err := buildLoopRunner(cfg, log, store, "ai-runtime")
	if err != nil {
		return nil, err
	}
	return &aibridge.CellExecutor{Runner: runner}, nil
}

func buildLoopRunner(cfg config.Config, log eventlog.Log, store *state.Store, actor string) (*aibridge.LoopRunner, error) {
	if strings.TrimSpace(cfg.OpenAI.APIKey) == "" {
		return nil, errors.New("openai api key is not configured")
	}
	client, err := notebook.NewClient(log, store, actor)
	if err != nil {
		return nil, err
	}
	waiter, err := notebook.NewWaiter(log, store)
	if err != nil {
		return nil, err
	}
	registry := aibridge.NewToolRegistry()
	toolset := &aibridge.NotebookToolset{Client: client, Waiter: waiter, Store: store}
	if err := toolset.RegisterAll(registry); err != nil {
		return nil, err
	}
	respClient := aibridge.NewResponsesClient(aibridge.OpenAIConfig{
		BaseURL: cfg.OpenAI.Endpoint,
		Model:   cfg.OpenAI.Model,
		APIKey:  cfg.OpenAI.APIKey,
	}, nil)
	return aibridge.NewLoopRunner(respClient, registry, aibridge.LoopRunnerOptions{
		Instructions: agentInstructions,
	}), nil
}
