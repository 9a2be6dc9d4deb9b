// Command conductor runs the campaign assistant server: an HTTP front end
// streaming turn events over NDJSON, backed by a planning model and a fixed
// set of marketing capabilities.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"conductor/pkg/admission"
	"conductor/pkg/cache"
	"conductor/pkg/capability"
	"conductor/pkg/checkpoint"
	"conductor/pkg/config"
	"conductor/pkg/dispatch"
	"conductor/pkg/eventlog"
	"conductor/pkg/handlers"
	"conductor/pkg/llm"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/orchestrator"
	"conductor/pkg/resilience"
	"conductor/pkg/transport"
	"conductor/pkg/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := runSetup(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runServe(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "conductor: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("conductor", flag.ExitOnError)
	var (
		configPath    = fs.String("config", "", "Path to config file (YAML)")
		addr          = fs.String("addr", "", "Listen address override")
		prometheusURL = fs.String("prometheus", "", "Prometheus server URL for usage queries")
		secretsDir    = fs.String("secrets-dir", ".", "Directory holding the encrypted secrets file")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *configPath == "" {
		*configPath = os.Getenv("CONDUCTOR_CONFIG")
	}
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := logx.NewLogger("main")

	secrets := config.NewSecretStore(*secretsDir)
	if secrets.Exists() {
		password := os.Getenv("CONDUCTOR_PASSWORD")
		if password == "" {
			fmt.Fprint(os.Stderr, "Secrets password: ")
			raw, readErr := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(os.Stderr)
			if readErr != nil {
				return fmt.Errorf("failed to read password: %w", readErr)
			}
			password = string(raw)
		}
		if err := secrets.Unlock(password); err != nil {
			return fmt.Errorf("failed to unlock secrets: %w", err)
		}
	}

	client, err := llm.NewClient(cfg.LLM, secrets)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	breakers := resilience.NewBreakerSet(cfg.Resilience.Breaker)
	breakers.OnOpen(recorder.ObserveBreakerOpen)
	invoker := resilience.NewInvoker(resilience.NewPolicy(cfg.Resilience.Retry, nil), breakers)

	counter, err := llm.NewTokenCounter(cfg.LLM.Model)
	if err != nil {
		logger.Warn("Token estimation unavailable: %v", err)
	}
	client = llm.Chain(
		client,
		llm.WithObserver(recorder, counter),
		llm.WithResilience(invoker),
	)

	registry := capability.NewRegistry()
	if err := handlers.RegisterAll(registry, client); err != nil {
		return fmt.Errorf("failed to register capabilities: %w", err)
	}

	ctrl := admission.NewController(
		admission.NewRateTable(cfg.Admission.Rates),
		admission.Config{DefaultBudget: cfg.Admission.DefaultBudget, MaxPending: cfg.Admission.MaxPending},
	)

	store := cache.NewMemoryStore(cfg.Cache.MaxEntries)
	results := cache.New(store)
	disp := dispatch.New(registry, ctrl, results, invoker, cfg.Cache, recorder)

	checkpoints, err := checkpoint.Open(cfg.Checkpoint.Path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() { _ = checkpoints.Close() }()

	journal, err := eventlog.NewWriter(cfg.EventLog.Dir)
	if err != nil {
		return fmt.Errorf("failed to open event journal: %w", err)
	}
	defer func() { _ = journal.Close() }()

	orch, err := orchestrator.New(orchestrator.Deps{
		Client:            client,
		Registry:          registry,
		Dispatcher:        disp,
		Checkpoints:       checkpoints,
		Invoker:           invoker,
		MaxRounds:         cfg.Orchestrator.MaxRounds,
		ToolFanout:        cfg.Orchestrator.ToolFanout,
		SuspensionTimeout: cfg.Server.SuspensionTimeout,
		Observer:          recorder,
		Journal:           journal,
	})
	if err != nil {
		return err
	}

	var usage *metrics.QueryService
	if *prometheusURL != "" {
		usage, err = metrics.NewQueryService(*prometheusURL)
		if err != nil {
			return fmt.Errorf("failed to create metrics query service: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go store.Run(ctx, cfg.Cache.SweepInterval)

	logger.Info("conductor %s (%s) serving model %s on %s", version.Version, version.Commit, client.ModelName(), cfg.Server.Addr)
	server := transport.NewServer(orch, checkpoints, ctrl, breakers, usage, cfg.Server)

	return server.StartServer(ctx)
}

// runSetup interactively creates or updates the encrypted secrets file.
func runSetup(args []string) error {
	fs := flag.NewFlagSet("conductor setup", flag.ExitOnError)
	secretsDir := fs.String("secrets-dir", ".", "Directory for the encrypted secrets file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secrets := config.NewSecretStore(*secretsDir)

	fmt.Fprint(os.Stderr, "Secrets password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if secrets.Exists() {
		if err := secrets.Unlock(string(password)); err != nil {
			return fmt.Errorf("failed to unlock existing secrets: %w", err)
		}
	}

	reader := bufio.NewReader(os.Stdin)
	for _, name := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY"} {
		fmt.Fprintf(os.Stderr, "%s (blank to keep/skip): ", name)
		value, readErr := reader.ReadString('\n')
		if readErr != nil {
			break
		}
		value = strings.TrimSpace(value)
		if value != "" {
			secrets.Set(name, value)
		}
	}

	if err := secrets.Save(string(password)); err != nil {
		return fmt.Errorf("failed to save secrets: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Secrets saved.")

	return nil
}
