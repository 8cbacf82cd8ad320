// Command grabagent-chat is an interactive terminal client for the agent.
// Type "quit" to exit.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/term"

	"github.com/manthysbr/grabagent/internal/adapters/mcp"
	"github.com/manthysbr/grabagent/internal/adapters/providers"
	appconfig "github.com/manthysbr/grabagent/internal/config"
	"github.com/manthysbr/grabagent/internal/core/domain"
	"github.com/manthysbr/grabagent/internal/core/services"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	configPath := flag.String("config", os.Getenv("GRABAGENT_CONFIG"), "path to the YAML config file")
	verbose := flag.Bool("v", false, "print each reasoning step")
	flag.Parse()

	if err := run(*configPath, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "Fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string, verbose bool) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}
	// the terminal is for the conversation; logs go to stderr
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	toolClient, err := mcp.ConnectStdio(ctx, logger, cfg.MCP)
	if err != nil {
		return err
	}
	defer toolClient.Close()

	registry, err := domain.LoadToolRegistry(ctx, toolClient,
		domain.WithArgumentValidator(services.NewSchemaValidator(logger)))
	if err != nil {
		return err
	}
	llmProvider, err := providers.Build(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	eventBus := services.NewEventBus(logger)
	agent := services.NewSessionManager(logger, services.AgentDeps{
		Logger:    logger,
		LLM:       llmProvider,
		Tools:     registry,
		Formatter: services.NewPromptFormatter(cfg.LLM.NativeTools),
		Recorder:  services.NewStepRecorder(logger, nil, eventBus),
		Options:   services.OptionsFromConfig(cfg),
	}, cfg.Agent.TurnTimeout)

	out := io.Writer(os.Stdout)
	readLine := lineReader()

	fmt.Fprintf(out, "Connected to %s with tools: %s\n", toolClient.ServerName(), toolNames(registry))
	fmt.Fprintln(out, "Type your queries or 'quit' to exit.")

	for {
		query, err := readLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		query = strings.TrimSpace(query)
		if query == "" {
			continue
		}
		if strings.EqualFold(query, "quit") {
			return nil
		}

		id := domain.NewSessionID()
		var stop func()
		if verbose {
			stop = printSteps(out, eventBus, id)
		}
		res, err := agent.RunSession(ctx, id, query)
		if stop != nil {
			stop()
		}
		switch {
		case err != nil:
			fmt.Fprintf(out, "\nError: %v\n", err)
		default:
			fmt.Fprintf(out, "\n%s\n", res.Text)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// lineReader uses a raw-mode terminal when stdin is a TTY and falls back to
// plain line scanning otherwise.
func lineReader() func() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		sc := bufio.NewScanner(os.Stdin)
		return func() (string, error) {
			fmt.Print("\nQuery: ")
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return "", err
				}
				return "", io.EOF
			}
			return sc.Text(), nil
		}
	}

	t := term.NewTerminal(os.Stdin, "Query: ")
	return func() (string, error) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return "", err
		}
		if width, height, err := term.GetSize(fd); err == nil {
			_ = t.SetSize(width, height)
		}
		line, err := t.ReadLine()
		if restoreErr := term.Restore(fd, oldState); restoreErr != nil && err == nil {
			err = restoreErr
		}
		return line, err
	}
}

func printSteps(out io.Writer, bus *services.EventBus, id domain.SessionID) func() {
	ch, unsub := bus.Subscribe(string(id))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range ch {
			if evt.Type != services.EventTypeStep {
				continue
			}
			var se services.StepEvent
			if err := json.Unmarshal([]byte(evt.Data), &se); err != nil {
				continue
			}
			fmt.Fprintf(out, "  [%d] %s: %s\n", se.Index, se.Step.Kind, firstLine(se.Step.Summary()))
		}
	}()
	return func() {
		unsub()
		<-done
	}
}

func toolNames(r *domain.ToolRegistry) string {
	names := make([]string, 0, r.Len())
	for _, t := range r.List() {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
