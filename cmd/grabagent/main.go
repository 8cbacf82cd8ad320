package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/manthysbr/grabagent/internal/adapters/duckdb"
	"github.com/manthysbr/grabagent/internal/adapters/mcp"
	"github.com/manthysbr/grabagent/internal/adapters/providers"
	appconfig "github.com/manthysbr/grabagent/internal/config"
	"github.com/manthysbr/grabagent/internal/core/domain"
	"github.com/manthysbr/grabagent/internal/core/ports"
	"github.com/manthysbr/grabagent/internal/core/services"
	"github.com/manthysbr/grabagent/pkg/kernel"
)

func main() {
	configPath := flag.String("config", os.Getenv("GRABAGENT_CONFIG"), "path to the YAML config file")
	encryptKey := flag.Bool("encrypt-key", false, "read an API key from the terminal and print its enc: form")
	flag.Parse()

	if *encryptKey {
		if err := printEncryptedKey(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting grabagent",
		"llm_mode", cfg.LLM.Mode,
		"model", cfg.LLM.Model,
		"api_key", appconfig.MaskSecret(cfg.LLM.APIKey),
		"max_steps", cfg.Agent.MaxSteps,
	)

	if err := run(logger, cfg); err != nil {
		logger.Error("grabagent failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(logger *slog.Logger, cfg domain.AppConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Step log (optional)
	var (
		sink     ports.StepLogSink
		sessions ports.SessionReader
	)
	if cfg.Storage.DBPath != "" {
		repo, err := duckdb.NewRepository(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to init repository: %w", err)
		}
		defer repo.Close()
		sink, sessions = repo, repo
	}

	// Tool server. A failed connection leaves the API up and reporting
	// unhealthy rather than exiting.
	registry, _ := domain.NewToolRegistry(nil, nil)
	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	toolClient, err := mcp.ConnectStdio(connectCtx, logger, cfg.MCP)
	connectCancel()
	if err != nil {
		logger.Error("failed to connect to mcp server", "command", cfg.MCP.Command, "error", err)
	} else {
		defer toolClient.Close()
		registry, err = domain.LoadToolRegistry(ctx, toolClient,
			domain.WithArgumentValidator(services.NewSchemaValidator(logger)))
		if err != nil {
			return fmt.Errorf("failed to load tools: %w", err)
		}
		logger.Info("tools loaded", "server", toolClient.ServerName(), "count", registry.Len())
	}

	llmProvider, err := providers.Build(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to build llm provider: %w", err)
	}

	eventBus := services.NewEventBus(logger)
	agent := services.NewSessionManager(logger, services.AgentDeps{
		Logger:    logger,
		LLM:       llmProvider,
		Tools:     registry,
		Formatter: services.NewPromptFormatter(cfg.LLM.NativeTools),
		Recorder:  services.NewStepRecorder(logger, sink, eventBus),
		Options:   services.OptionsFromConfig(cfg),
	}, cfg.Agent.TurnTimeout)

	apiServer := kernel.NewServer(logger, agent, toolClient, sessions, eventBus)

	// CORS: allow all origins
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: c.Handler(apiServer.Handler()),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func printEncryptedKey() error {
	sk, err := appconfig.NewSecretKey()
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, "API key: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	enc, err := sk.Encrypt(string(raw))
	if err != nil {
		return err
	}
	fmt.Println(enc)
	return nil
}
