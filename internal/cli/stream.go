package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	sse "github.com/aponysus/restream/integrations/http"
	"github.com/aponysus/restream/internal/fakeapi"
	"github.com/aponysus/restream/observe"
	"github.com/aponysus/restream/observe/metrics"
	"github.com/aponysus/restream/observe/tracing"
	"github.com/aponysus/restream/policy"
	"github.com/aponysus/restream/retry"
)

type streamOptions struct {
	URL         string
	Prompt      string
	PolicyFile  string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	RetryAll    bool
	MetricsAddr string
	Trace       bool
	Timeout     time.Duration
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream a response through the retry engine",
	Long: `Opens a Server-Sent-Events stream and prints each chunk as it arrives.
Failed attempts are classified and retried from scratch. Chunks already
printed stay printed; a retry banner marks where the next attempt begins.`,
	Example: `  restream serve --unavailable-every 2 &
  restream stream --url http://localhost:8080/v1/stream --prompt "hello"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := streamOptions{
			URL:         viper.GetString("url"),
			Prompt:      viper.GetString("prompt"),
			PolicyFile:  viper.GetString("policy"),
			MaxAttempts: viper.GetInt("max-attempts"),
			BaseDelay:   viper.GetDuration("base-delay"),
			MaxDelay:    viper.GetDuration("max-delay"),
			RetryAll:    viper.GetBool("retry-all"),
			MetricsAddr: viper.GetString("metrics-addr"),
			Trace:       viper.GetBool("trace"),
			Timeout:     viper.GetDuration("timeout"),
		}
		return runStream(cmd.Context(), opts, http.DefaultClient, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	},
}

func init() {
	f := streamCmd.Flags()
	f.String("url", "", "Streaming endpoint URL (required)")
	f.String("prompt", "", "Prompt sent in the request body")
	f.String("policy", "", "YAML retry policy file")
	f.Int("max-attempts", 0, "Maximum attempts including the first (default 5)")
	f.Duration("base-delay", 0, "Base delay for exponential backoff (default 1s)")
	f.Duration("max-delay", 0, "Cap for every wait (default 10s)")
	f.Bool("retry-all", false, "Retry every failure except daily quota exhaustion")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while streaming")
	f.Bool("trace", false, "Print OpenTelemetry spans to stderr")
	f.Duration("timeout", 0, "Overall deadline for the call (0 = none)")
	_ = viper.BindPFlags(f)

	rootCmd.AddCommand(streamCmd)
}

// resolvePolicy starts from the policy file, when given, and applies any
// explicitly configured flag values on top. The source stays "file" for a
// loaded policy; overridden fields are listed in Meta.Overrides.
func resolvePolicy(opts streamOptions) (policy.Config, error) {
	cfg := policy.Default()
	if opts.PolicyFile != "" {
		loaded, err := policy.LoadFile(opts.PolicyFile)
		if err != nil {
			return policy.Config{}, err
		}
		cfg = loaded
	}

	var overrides []string
	if opts.MaxAttempts != 0 {
		cfg.MaxAttempts = opts.MaxAttempts
		overrides = append(overrides, "max_attempts")
	}
	if opts.BaseDelay != 0 {
		cfg.BaseDelay = opts.BaseDelay
		overrides = append(overrides, "base_delay")
	}
	if opts.MaxDelay != 0 {
		cfg.MaxDelay = opts.MaxDelay
		overrides = append(overrides, "max_delay")
	}
	if opts.RetryAll {
		cfg.RetryAllErrors = true
		overrides = append(overrides, "retry_all_errors")
	}
	if len(overrides) == 0 {
		return cfg, nil
	}

	if cfg.Meta.Source == policy.SourceDefault {
		cfg.Meta.Source = policy.SourceStatic
	}
	cfg.Meta.Overrides = overrides
	return cfg.Normalize()
}

func runStream(ctx context.Context, opts streamOptions, client *http.Client, stdout, stderr io.Writer, logger *slog.Logger) error {
	if opts.URL == "" {
		return errors.New("required flag \"url\" not set")
	}
	cfg, err := resolvePolicy(opts)
	if err != nil {
		return err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	execOpts := []retry.ExecutorOption{
		retry.WithConfig(cfg),
		retry.WithName("stream"),
		retry.WithLogger(logger),
		retry.WithObserver(metrics.New(reg)),
	}

	if opts.MetricsAddr != "" {
		srv := startMetricsServer(opts.MetricsAddr, reg, logger)
		defer shutdown(srv, logger)
	}

	if opts.Trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()
		execOpts = append(execOpts, retry.WithObserver(tracing.New(tp)))
	}

	printer := newStatusPrinter(stderr, logger)
	queue := observe.NewQueue(printer, printer, logger)
	defer func() { _ = queue.Close() }()
	execOpts = append(execOpts, retry.WithStateSink(queue), retry.WithTranscript(queue))

	exec := retry.NewExecutor(execOpts...)
	logger.Debug("stream starting",
		"url", opts.URL,
		"max_attempts", cfg.MaxAttempts,
		"base_delay", cfg.BaseDelay,
		"max_delay", cfg.MaxDelay,
		"config_source", cfg.Meta.Source,
	)

	body, err := json.Marshal(map[string]string{"prompt": opts.Prompt})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	op := sse.SSE(client, sse.NewRequest(http.MethodPost, opts.URL, body, header))

	for ev, err := range retry.Wrap(exec, op)(ctx) {
		if err != nil {
			fmt.Fprintln(stdout)
			return err
		}
		if _, err := io.WriteString(stdout, chunkText(ev)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	fmt.Fprintln(stdout)
	return nil
}

// chunkText extracts the text of a chunk event, falling back to the raw data
// for payloads that are not JSON chunks.
func chunkText(ev sse.Event) string {
	var c fakeapi.Chunk
	if err := json.Unmarshal(ev.Data, &c); err != nil || c.Text == "" {
		return string(ev.Data)
	}
	return c.Text
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics available", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown failed", "error", err)
	}
}
