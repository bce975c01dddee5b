// Command ragagent runs the RAG agent orchestration core against a single
// user request and prints the final answer.
//
// Optional environment variables:
//
//	AGENTCORE_MCP_REGISTRY_URL        - MCP tool registry base URL
//	AGENTCORE_LLM_<ROLE>_API_KEY      - per-role LLM API key override
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragflow/agentcore/agent"
	"github.com/ragflow/agentcore/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ragagent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML config file (optional)")
	request := flag.String("request", "", "user request; reads from stdin when empty")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	disableDatabases := flag.Bool("disable-databases", false, "skip the SQL subgraph entirely")
	disableSQLBlocking := flag.Bool("disable-sql-blocking", false, "skip the §4.4 SQL safety validator")
	disablePromptStage := flag.Bool("disable-prompt-stage", false, "skip analyze_request's planning LLM call")
	disableResponseStage := flag.Bool("disable-response-stage", false, "use plain citation concatenation instead of a synthesis LLM call")
	maxIterations := flag.Int("max-iterations", 0, "override configured max_iterations (0 = use config)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	userRequest := *request
	if userRequest == "" {
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading request from stdin: %w", err)
		}
		userRequest = strings.TrimSpace(string(input))
	}
	if userRequest == "" {
		return fmt.Errorf("no request given: pass -request or pipe one on stdin")
	}

	flags := agent.RequestFlags{
		DisableSQLBlocking:   *disableSQLBlocking || cfg.Security.DisableSQLBlocking,
		DisableDatabases:     *disableDatabases || cfg.Features.DisableDatabases,
		DisablePromptStage:   *disablePromptStage || cfg.Features.DisablePromptStage,
		DisableResponseStage: *disableResponseStage || cfg.Features.DisableResponseStage,
		MaxIterations:        *maxIterations,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics, registry := agent.NewMetrics(cfg)
	if registry != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", srvErr)
			}
		}()
		defer server.Close()
		logger.Info("serving metrics", "addr", cfg.Metrics.ListenAddr)
	}

	logger.Info("starting run", "registry_url", cfg.MCP.RegistryURL, "max_iterations", cfg.Iteration.MaxIterations)

	result, err := agent.RunWithMetrics(ctx, userRequest, flags, cfg, metrics)
	if err != nil {
		return fmt.Errorf("running agent: %w", err)
	}

	logger.Info("run complete", "visited_nodes", len(result.Visited), "tool_results", len(result.ToolResults))
	if result.Error != nil {
		logger.Warn("run finished with a recorded error", "error", result.Error)
	}

	fmt.Println(result.FinalAnswer)
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
