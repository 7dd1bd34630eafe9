package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/docsync/internal/db"
	"github.com/openmined/docsync/internal/server"
	"github.com/openmined/docsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "DOCSYNC"
	configFileName = "config"
)

var (
	home, _        = os.UserHomeDir()
	defaultDataDir = filepath.Join(home, ".docsync")
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docsync-server",
		Short:   "DocSync sync service",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			srv, err := server.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	cmd.Flags().String("cert", "", "Path to the TLS certificate file")
	cmd.Flags().String("key", "", "Path to the TLS key file")
	cmd.PersistentFlags().StringP("config", "c", "", "Config file (default is ~/.docsync/config.yaml)")
	cmd.PersistentFlags().StringP("datadir", "d", defaultDataDir, "Data directory")

	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	setupLogger(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level slog.Level) {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("log_level", "info")

	v.SetDefault("http.addr", server.DefaultAddr)
	v.SetDefault("http.cert_file", "")
	v.SetDefault("http.key_file", "")
	v.SetDefault("http.rate_limit", server.DefaultRateLimit)

	v.SetDefault("db.driver", db.DriverSqlite)
	v.SetDefault("db.path", "docsync.db")
	v.SetDefault("db.dsn", "")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token_issuer", "docsync")
	v.SetDefault("auth.access_token_secret", "")
	v.SetDefault("auth.access_token_expiry", 24*time.Hour)
	v.SetDefault("auth.refresh_token_secret", "")
	v.SetDefault("auth.refresh_token_expiry", 30*24*time.Hour)

	v.SetDefault("remote.driver", server.RemoteMemory)
	v.SetDefault("remote.authorize_url", "https://console.aws.amazon.com/iam/home#/security_credentials")
	v.SetDefault("remote.s3.bucket_name", "")
	v.SetDefault("remote.s3.region", "us-east-1")
	v.SetDefault("remote.s3.endpoint", "")
	v.SetDefault("remote.s3.prefix", "")
	v.SetDefault("remote.s3.use_path_style", false)
	v.SetDefault("remote.s3.quota_bytes", 0)

	v.SetDefault("repo.content_dir", "content")
	v.SetDefault("repo.share_host", "docsync")

	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", server.DefaultPollInterval)
	v.SetDefault("poller.sites", []string{})
	v.SetDefault("poller.ignore", []string{})
	v.SetDefault("poller.lock_file", "poll.lock")
}

// loadConfig layers defaults, the config file, .env, DOCSYNC_* env vars and flags, in that order
func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	v := viper.New()
	setDefaults(v)

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(filepath.Join(home, ".docsync"))
		v.AddConfigPath(".")
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindFlag(v, cmd, "http.addr", "bind")
	bindFlag(v, cmd, "http.cert_file", "cert")
	bindFlag(v, cmd, "http.key_file", "key")
	bindFlag(v, cmd, "data_dir", "datadir")

	cfg := &server.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	level, _ := server.ParseLogLevel(cfg.LogLevel)
	setupLogger(level)
	if used := v.ConfigFileUsed(); used != "" {
		slog.Debug("config loaded", "path", used)
	}
	return cfg, nil
}

// bindFlag only binds flags the command actually has
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if f := cmd.Flag(flag); f != nil {
		v.BindPFlag(key, f)
	}
}
