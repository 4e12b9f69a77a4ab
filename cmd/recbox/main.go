package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/offlinehq/recbox/internal/config"
	"github.com/offlinehq/recbox/internal/daemon"
	"github.com/offlinehq/recbox/internal/utils"
	"github.com/offlinehq/recbox/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _          = os.UserHomeDir()
	defaultServerURL = "https://records.offlinehq.dev"
	configFileName   = "config"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "recbox",
	Short:   "RecBox sync daemon",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromViper()
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true
		showHeader()

		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return d.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("account", "a", "", "account id for the record service")
	rootCmd.Flags().StringP("datadir", "d", config.DefaultDataDir, "RecBox data directory")
	rootCmd.Flags().StringP("server", "s", defaultServerURL, "record service URL")
	rootCmd.Flags().StringSliceP("collections", "C", nil, "collection ids to sync")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "RecBox config file")
}

func main() {
	_ = godotenv.Load()

	logFile := config.DefaultLogFile
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	logger := slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".recbox"))
		viper.AddConfigPath(filepath.Join(home, ".config/recbox"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("account_id", cmd.Flags().Lookup("account"))
	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("collections", cmd.Flags().Lookup("collections"))

	viper.SetEnvPrefix("RECBOX")
	viper.AutomaticEnv()

	return nil
}

func configFromViper() (*config.Config, error) {
	cfg := &config.Config{
		Path:              viper.ConfigFileUsed(),
		DataDir:           viper.GetString("data_dir"),
		ServerURL:         viper.GetString("server_url"),
		AccountID:         viper.GetString("account_id"),
		RefreshToken:      viper.GetString("refresh_token"),
		Collections:       viper.GetStringSlice("collections"),
		RequestsPerSecond: viper.GetFloat64("requests_per_second"),
		BatchSize:         viper.GetInt("batch_size"),
		SyncIntervalSecs:  viper.GetInt("sync_interval_secs"),
		StaleAfterSecs:    viper.GetInt("stale_after_secs"),
		MergeRulesPath:    viper.GetString("merge_rules_path"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Printf("RecBox %s\n", version.Short())
}
