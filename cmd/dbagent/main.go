// Package main provides the CLI entry point for dbagent, a natural-language
// agent that answers questions about a PostgreSQL database by reasoning over
// a small built-in tool catalog and dispatching SQL through a safety gate.
//
// # Basic Usage
//
// Start an interactive session:
//
//	dbagent run --config dbagent.yaml
//
// Ask a single question and exit:
//
//	dbagent query --config dbagent.yaml "how many rows are in orders?"
//
// # Environment Variables
//
//   - DBAGENT_DB_PASSWORD: database password override
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: provider credentials
//   - DBAGENT_SAFETY_LEVEL: read_only, balanced, or permissive
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/haasonsaas/dbagent/internal/agent"
	"github.com/haasonsaas/dbagent/internal/agent/providers"
	"github.com/haasonsaas/dbagent/internal/audit"
	"github.com/haasonsaas/dbagent/internal/backoff"
	"github.com/haasonsaas/dbagent/internal/config"
	dbagentcontext "github.com/haasonsaas/dbagent/internal/context"
	"github.com/haasonsaas/dbagent/internal/dbpg"
	"github.com/haasonsaas/dbagent/internal/dbtools"
	"github.com/haasonsaas/dbagent/internal/observability"
	"github.com/haasonsaas/dbagent/internal/safety"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("dbagent exited with error", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbagent",
		Short: "dbagent - natural-language PostgreSQL agent",
		Long: `dbagent answers questions about a PostgreSQL database in natural language.

It reasons over a small built-in tool catalog (execute_query, get_schema,
list_tables, describe_table, explain_query) and gates risky statements
behind a confirmation workflow before they reach the database.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildQueryCmd(),
		buildStatusCmd(),
	)
	return rootCmd
}

// buildRunCmd starts an interactive REPL: each line is one Run, and any
// confirmation prompt is pumped from stdin before the loop continues.
func buildRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive question/answer session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "dbagent.yaml", "Path to YAML configuration file")
	return cmd
}

// buildQueryCmd asks a single question and exits, pumping at most one
// confirmation round-trip from stdin if the loop suspends.
func buildQueryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a single question and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd.Context(), configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "dbagent.yaml", "Path to YAML configuration file")
	return cmd
}

// buildStatusCmd checks that the configured database is reachable.
func buildStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := connectStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Println("ok: database reachable")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "dbagent.yaml", "Path to YAML configuration file")
	return cmd
}

// session bundles every constructed component a run needs, so main.go's two
// driver loops (REPL and one-shot) can share setup/teardown.
type session struct {
	loop   *agent.AgenticLoop
	store  *dbpg.Store
	audit  audit.Sink
	tracer *observability.Tracer
	shut   func(context.Context) error
}

func (s *session) Close() {
	if s.audit != nil {
		_ = s.audit.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.shut != nil {
		_ = s.shut(context.Background())
	}
}

func newSession(ctx context.Context, configPath string) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := connectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		store.Close()
		return nil, err
	}
	warnContextWindow(provider, cfg.Agent.MaxTokens)

	auditSink, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build audit sink: %w", err)
	}

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "dbagent",
		ServiceVersion: version,
	})

	registry := agent.NewToolRegistry()
	if err := dbtools.RegisterAll(registry, store); err != nil {
		auditSink.Close()
		store.Close()
		return nil, fmt.Errorf("register tools: %w", err)
	}

	convCtx := agent.NewConversationContext(cfg.Agent.MaxHistory, cfg.Agent.MaxTokens)
	executor := agent.NewExecutor(registry, &agent.ExecutorConfig{
		MaxConcurrency: 5,
		DefaultTimeout: cfg.Agent.ToolTimeout,
	})

	loop := agent.NewAgenticLoop(provider, registry, executor, convCtx, &agent.LoopConfig{
		MaxIterations:    cfg.Agent.MaxIterations,
		SafetyLevel:      cfg.Agent.SafetyLevel,
		ReadOnly:         cfg.Agent.ReadOnly,
		OperationTimeout: cfg.Agent.OperationTimeout,
	}, auditSink)

	return &session{loop: loop, store: store, audit: auditSink, tracer: tracer, shut: shutdown}, nil
}

// connectStore opens the database pool with the startup retry policy: a
// transient connection failure (the database still coming up alongside the
// agent, a brief network blip) is worth a few attempts before giving up.
func connectStore(ctx context.Context, cfg *config.Config) (*dbpg.Store, error) {
	dbCfg := &dbpg.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}

	store, err := backoff.RetryFunc(ctx, 3, func(attempt int) (*dbpg.Store, error) {
		s, err := dbpg.New(dbCfg)
		if err != nil {
			slog.Warn("database connection attempt failed", "attempt", attempt, "error", err)
		}
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return store, nil
}

func buildProvider(cfg config.LLMConfig) (agent.LLMProvider, error) {
	switch cfg.Provider {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.Anthropic.APIKey,
			BaseURL:      cfg.Anthropic.BaseURL,
			DefaultModel: cfg.Anthropic.DefaultModel,
			MaxRetries:   cfg.Anthropic.MaxRetries,
			RetryDelay:   cfg.Anthropic.RetryDelay,
		})
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			DefaultModel: cfg.OpenAI.DefaultModel,
			MaxRetries:   cfg.OpenAI.MaxRetries,
			RetryDelay:   cfg.OpenAI.RetryDelay,
		})
	case "bedrock":
		return providers.NewBedrockProvider(providers.BedrockConfig{
			Region:          cfg.Bedrock.Region,
			AccessKeyID:     cfg.Bedrock.AccessKeyID,
			SecretAccessKey: cfg.Bedrock.SecretAccessKey,
			SessionToken:    cfg.Bedrock.SessionToken,
			DefaultModel:    cfg.Bedrock.DefaultModel,
			MaxRetries:      cfg.Bedrock.MaxRetries,
			RetryDelay:      cfg.Bedrock.RetryDelay,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// warnContextWindow logs a startup advisory when maxTokens exceeds the
// selected model's known context window. It never adjusts the configured
// budget or feeds into ConversationContext's own pruning, which stays on the
// fixed char/4 heuristic everywhere else in the loop; this is informational
// only, so a misconfigured model/budget pair shows up in logs before the
// first request fails with a context-length error.
func warnContextWindow(provider agent.LLMProvider, maxTokens int) {
	if maxTokens <= 0 {
		return
	}
	modelWindow := dbagentcontext.ContextWindowFor(provider.Model())
	if maxTokens > modelWindow {
		slog.Warn("configured max_tokens exceeds the model's context window",
			"model", provider.Model(), "max_tokens", maxTokens, "model_window", modelWindow)
	}
}

func runOneShot(ctx context.Context, configPath, question string) error {
	s, err := newSession(ctx, configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, span := s.tracer.TraceAgentRun(ctx, "one-shot", string(safety.LevelBalanced))
	defer span.End()

	result, err := s.loop.Run(ctx, question)
	if err != nil {
		return err
	}
	return pumpUntilFinal(ctx, s.loop, result, bufio.NewReader(os.Stdin), os.Stdout)
}

func runREPL(ctx context.Context, configPath string) error {
	s, err := newSession(ctx, configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	in := bufio.NewReader(os.Stdin)
	out := os.Stdout
	fmt.Fprintln(out, "dbagent ready. Type a question, or 'exit' to quit.")

	for {
		fmt.Fprint(out, "> ")
		line, err := in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		runCtx, span := s.tracer.TraceAgentRun(ctx, fmt.Sprintf("repl-%d", time.Now().UnixNano()), string(safety.LevelBalanced))
		result, err := s.loop.Run(runCtx, line)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			span.End()
			continue
		}
		if err := pumpUntilFinal(runCtx, s.loop, result, in, out); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		span.End()
	}
}

// pumpUntilFinal drives the cooperative-suspension loop: whenever Run or
// Resume reports AwaitingConfirmation, it prompts stdin for the resolution
// appropriate to the pending request's tier, resolves the gate, and calls
// Resume. It returns once a final answer is printed.
func pumpUntilFinal(ctx context.Context, loop *agent.AgenticLoop, result *agent.RunResult, in *bufio.Reader, out io.Writer) error {
	for {
		switch result.Outcome {
		case agent.OutcomeFinalAnswer:
			fmt.Fprintln(out, result.Answer)
			return nil

		case agent.OutcomeAwaitingConfirmation:
			approved, err := resolvePending(loop, in, out)
			if err != nil {
				fmt.Fprintln(out, "confirmation error:", err)
			}
			result, err = loop.Resume(ctx, approved)
			if err != nil {
				return err
			}

		default:
			return fmt.Errorf("unexpected run outcome %q", result.Outcome)
		}
	}
}

// resolvePending prints the pending request and asks the operator to
// resolve it, per the tier it was issued at. It returns whether the loop
// should proceed with the suspended call.
func resolvePending(loop *agent.AgenticLoop, in *bufio.Reader, out io.Writer) (bool, error) {
	pending := loop.Pending()
	if pending == nil {
		return false, fmt.Errorf("no pending confirmation to resolve")
	}

	fmt.Fprintf(out, "\nconfirmation required: %s\n  sql: %s\n  tier: %s\n", pending.Operation, pending.SQL, pending.Tier)

	now := time.Now()
	switch pending.Tier {
	case safety.TierSimple:
		fmt.Fprint(out, "approve? [y/N] ")
		line, _ := in.ReadString('\n')
		if strings.EqualFold(strings.TrimSpace(line), "y") {
			if err := loop.ConfirmPending(now); err != nil {
				return false, err
			}
			return true, nil
		}
		loop.CancelPending()
		return false, nil

	case safety.TierTyped:
		fmt.Fprintf(out, "type %q to confirm, anything else to cancel: ", pending.ExpectedMatch)
		line, _ := in.ReadString('\n')
		value := strings.TrimSpace(line)
		if err := loop.ConfirmPendingTyped(value, now); err != nil {
			loop.CancelPending()
			return false, nil
		}
		return true, nil

	case safety.TierAdminApproval:
		fmt.Fprint(out, "admin approval required; approve? [y/N] ")
		line, _ := in.ReadString('\n')
		if strings.EqualFold(strings.TrimSpace(line), "y") {
			if err := loop.AdminApprovePending(now); err != nil {
				return false, err
			}
			return true, nil
		}
		loop.CancelPending()
		return false, nil

	default:
		loop.CancelPending()
		return false, fmt.Errorf("unknown confirmation tier %q", pending.Tier)
	}
}
