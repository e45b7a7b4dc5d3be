package cmd

import (
	"context"
	"fmt"
	"os"

	"maga/internal/config"
	"maga/internal/logging"

	"github.com/spf13/cobra"
)

var (
	globalConfigFile string
	globalLogFormat  string
	globalLogLevel   string
	globalKey        string
	globalSecret     string
	globalHost       string
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "maga",
		Short:         "maga private protocol client, codec and reference gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{
				ConfigFile: GetConfigFileFlag(),
				Flags:      cmd.Flags(),
			})
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Prefix: cfg.Log.Prefix,
				File:   cfg.Log.File,
			})
			if err != nil {
				return err
			}
			ctx := logging.WithLogger(cmd.Context(), logger)
			cmd.SetContext(withConfig(ctx, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(
		&globalConfigFile,
		"config",
		"",
		"config file (default: search up for .maga/config.yaml, fallback: ~/.maga/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "log format: text|json")
	rootCmd.PersistentFlags().StringVar(&globalLogLevel, "level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&globalKey, "key", "", "application key")
	rootCmd.PersistentFlags().StringVar(&globalSecret, "secret", "", "application secret")
	rootCmd.PersistentFlags().StringVar(&globalHost, "host", "", "gateway host, e.g. https://wx-maga.aligames.com")

	rootCmd.AddCommand(NewRequestCmd())
	rootCmd.AddCommand(NewEncodeCmd())
	rootCmd.AddCommand(NewDecodeCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewKeystoreCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewMCPCmd())

	return rootCmd
}

func Execute() {
	if err := Run(NewRootCmd()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// Run executes root and then closes the logger the executed command
// opened.
func Run(root *cobra.Command) error {
	cmd, err := root.ExecuteC()
	if cmd != nil {
		if cerr := logging.Close(logging.FromContext(cmd.Context())); err == nil {
			err = cerr
		}
	}
	return err
}

func GetConfigFileFlag() string {
	return globalConfigFile
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// configFrom returns the config loaded by the root command, or defaults
// when the command runs outside of it.
func configFrom(ctx context.Context) (*config.Config, error) {
	if ctx != nil {
		if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok && cfg != nil {
			return cfg, nil
		}
	}
	return config.Load(config.LoadOptions{ConfigFile: GetConfigFileFlag()})
}
