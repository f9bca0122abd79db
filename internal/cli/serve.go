package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aponysus/restream/internal/fakeapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a deliberately flaky streaming API",
	Long: `Serves /v1/stream, an SSE endpoint that replies one word at a time and
misbehaves on demand: 503s, token-bucket 429s with RetryInfo and QuotaFailure
details, and errors injected halfway through a stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := fakeapi.Config{
			RPS:                viper.GetFloat64("rps"),
			Burst:              viper.GetInt("burst"),
			UnavailableEvery:   viper.GetInt("unavailable-every"),
			FailFirst:          viper.GetInt("fail-first"),
			MidStreamFailEvery: viper.GetInt("mid-stream-fail-every"),
			DailyQuota:         viper.GetBool("daily-quota"),
			RetryDelay:         viper.GetDuration("retry-delay"),
			ChunkDelay:         viper.GetDuration("chunk-delay"),
		}
		addr := viper.GetString("addr")
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		return serve(cmd.Context(), ln, cfg, logger)
	},
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", "127.0.0.1:8080", "Listen address")
	f.Float64("rps", 0, "Requests per second before 429s (0 = unlimited)")
	f.Int("burst", 1, "Token bucket burst size")
	f.Int("unavailable-every", 0, "Fail every Nth request with a 503")
	f.Int("fail-first", 0, "Fail the first N requests with a 503")
	f.Int("mid-stream-fail-every", 0, "Break every Nth stream halfway with an error event")
	f.Bool("daily-quota", false, "Report 429s as per-day quota exhaustion")
	f.Duration("retry-delay", time.Second, "Retry delay advertised on 429s")
	f.Duration("chunk-delay", 80*time.Millisecond, "Pause between streamed words")
	_ = viper.BindPFlags(f)

	rootCmd.AddCommand(serveCmd)
}

// serve runs the fake API on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, cfg fakeapi.Config, logger *slog.Logger) error {
	api := fakeapi.New(cfg, logger.With("component", "fakeapi"))
	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdown(srv, logger)
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("fake API stopped", "requests", api.Requests())
	return nil
}
