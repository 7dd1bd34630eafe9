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

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "DOCSYNC"
	configFileName = "client"
	defaultServer  = "http://127.0.0.1:8080"
)

var home, _ = os.UserHomeDir()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "docsync",
		Short:         "Link repository nodes to your remote account",
		Version:       version.Detailed(),
		SilenceErrors: true,
	}

	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringP("config", "c", "", "Config file (default is ~/.docsync/client.yaml)")
	cmd.PersistentFlags().StringP("server", "s", defaultServer, "DocSync server URL")
	cmd.PersistentFlags().StringP("user", "u", "", "User to act as when the server has auth disabled")
	cmd.PersistentFlags().String("token", "", "Access token when the server has auth enabled")
	cmd.PersistentFlags().StringP("output", "o", formatText, "Output format: text, json or yaml")

	cmd.AddCommand(newLinkCmd())
	cmd.AddCommand(newUnlinkCmd())
	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPollCmd())
	cmd.AddCommand(newRemoteCmd())
	cmd.AddCommand(newRepoCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), red.Render("ERROR")+" "+describeError(err))
		os.Exit(1)
	}
}

// loadConfig layers the config file, DOCSYNC_* env vars and flags
func loadConfig(cmd *cobra.Command) (*docsdk.Config, error) {
	cfg, err := readConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfig(cmd *cobra.Command) (*docsdk.Config, error) {
	v := viper.New()
	v.SetDefault("server_url", defaultServer)
	v.SetDefault("user", "")
	v.SetDefault("access_token", "")

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(filepath.Join(home, ".docsync"))
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"server_url":   "server",
		"user":         "user",
		"access_token": "token",
	} {
		if f := cmd.Flag(flag); f != nil {
			v.BindPFlag(key, f)
		}
	}

	cfg := &docsdk.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	return cfg, nil
}

// newClient builds the sdk and printer every API command uses
func newClient(cmd *cobra.Command) (*docsdk.DocSync, *printer, error) {
	p, err := newPrinter(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	sdk, err := docsdk.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	cmd.SilenceUsage = true
	return sdk, p, nil
}

func describeError(err error) string {
	var apiErr *docsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return fmt.Sprintf("%s %s", err.Error(), gray.Render("("+apiErr.Code+")"))
	}
	return err.Error()
}
