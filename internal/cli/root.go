package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logLevel string
	envFile  string

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "restream",
	Short: "Drive streaming endpoints through a retry engine",
	Long: `restream streams a response from an HTTP Server-Sent-Events endpoint and
retries failed attempts with classification-aware exponential backoff.

Server-provided retry delays (RetryInfo, Retry-After) are honoured, and daily
quota exhaustion stops immediately. Retry banners go to stderr, streamed
text goes to stdout.

Environment variables with the RESTREAM_ prefix override flag defaults,
for example RESTREAM_MAX_ATTEMPTS=3.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		logger = setupLogger(viper.GetString("log-level"), cmd.ErrOrStderr())
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading RESTREAM_ variables")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.SetEnvPrefix("RESTREAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadEnvFile loads dotenv variables without overriding the real environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
