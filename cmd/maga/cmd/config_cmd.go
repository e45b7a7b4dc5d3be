package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"maga/internal/config"
	"maga/internal/keystore"
	"maga/internal/logging"

	"github.com/spf13/cobra"
)

var errRedisUnreachable = errors.New("config: redis keystore unreachable")

func NewConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and install maga config",
	}

	configCmd.AddCommand(newConfigPathCmd())
	configCmd.AddCommand(newConfigValidateCmd())
	configCmd.AddCommand(newConfigApplyCmd())
	return configCmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print resolved config path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.ResolveConfigPath(GetConfigFileFlag()))
			return nil
		},
	}
}

// configReport is what `config validate` prints.
type configReport struct {
	Path     string         `json:"path"`
	Client   clientReport   `json:"client"`
	Keystore keystoreReport `json:"keystore"`
}

type clientReport struct {
	Ready   bool   `json:"ready"`
	Key     string `json:"key,omitempty"`
	Host    string `json:"host"`
	Problem string `json:"problem,omitempty"`
}

type keystoreReport struct {
	// Static counts app keys served from the config file.
	Static int          `json:"static"`
	Redis  *redisReport `json:"redis,omitempty"`
}

type redisReport struct {
	Hash      string `json:"hash"`
	Reachable bool   `json:"reachable"`
	Entries   int64  `json:"entries"`
	Problem   string `json:"problem,omitempty"`
}

func newConfigValidateCmd() *cobra.Command {
	var (
		file    string
		timeout time.Duration
		offline bool
	)
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file and check the keystore it points at",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.FromContext(cmd.Context())
			path := firstNonEmpty(file, GetConfigFileFlag())
			cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			report := configReport{
				Path:     config.ResolveConfigPath(path),
				Client:   clientReadiness(cfg),
				Keystore: keystoreReport{Static: len(staticKeys(cfg))},
			}
			if strings.TrimSpace(cfg.Server.RedisURL) != "" && !offline {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				report.Keystore.Redis = checkRedis(ctx, cfg)
				cancel()
			}

			logger.Info("config checked", "client_ready", report.Client.Ready, "static_keys", report.Keystore.Static)
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if r := report.Keystore.Redis; r != nil && !r.Reachable {
				return fmt.Errorf("%w: %s", errRedisUnreachable, r.Problem)
			}
			return nil
		},
	}
	validateCmd.Flags().StringVar(&file, "file", "", "config file path (default: search up for .maga/config.yaml, fallback: ~/.maga/config.yaml)")
	validateCmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "redis check timeout")
	validateCmd.Flags().BoolVar(&offline, "offline", false, "skip the redis reachability check")
	return validateCmd
}

func clientReadiness(cfg *config.Config) clientReport {
	out := clientReport{Key: cfg.Client.Key, Host: cfg.Client.Host}
	if err := cfg.ValidateClient(); err != nil {
		out.Problem = err.Error()
		return out
	}
	out.Ready = true
	return out
}

func checkRedis(ctx context.Context, cfg *config.Config) *redisReport {
	ks, err := keystore.NewRedisFromURL(cfg.Server.RedisURL, cfg.Server.RedisHash)
	if err != nil {
		return &redisReport{Hash: cfg.Server.RedisHash, Problem: err.Error()}
	}
	defer ks.Close()

	out := &redisReport{Hash: ks.Hash()}
	if err := ks.Ping(ctx); err != nil {
		out.Problem = err.Error()
		return out
	}
	out.Reachable = true
	if n, err := ks.Count(ctx); err != nil {
		out.Problem = err.Error()
	} else {
		out.Entries = n
	}
	return out
}

func newConfigApplyCmd() *cobra.Command {
	var file string
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Install a config file at the default location",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.FromContext(cmd.Context())
			src := firstNonEmpty(file, GetConfigFileFlag())
			if src == "" {
				return fmt.Errorf("missing --file (or --config)")
			}
			dst := config.DefaultConfigPath()
			if err := config.ApplyFile(src, dst); err != nil {
				return err
			}
			logger.Info("config applied", "path", dst)
			fmt.Fprintln(cmd.OutOrStdout(), dst)
			return nil
		},
	}
	applyCmd.Flags().StringVar(&file, "file", "", "source config file path")
	return applyCmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
