package cmd

import (
	"fmt"

	"maga/internal/keystore"
	"maga/internal/logging"

	"github.com/spf13/cobra"
)

func NewKeystoreCmd() *cobra.Command {
	keystoreCmd := &cobra.Command{
		Use:   "keystore",
		Short: "Manage the Redis keystore used by serve",
	}
	keystoreCmd.AddCommand(newKeystorePutCmd())
	return keystoreCmd
}

func newKeystorePutCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "put <appkey> <secret>",
		Short: "Register an application secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Server.RedisURL == "" {
				return fmt.Errorf("missing --redis-url (or server.redis_url)")
			}
			ks, err := keystore.NewRedisFromURL(cfg.Server.RedisURL, cfg.Server.RedisHash)
			if err != nil {
				return err
			}
			defer ks.Close()
			if err := ks.Put(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			logging.FromContext(cmd.Context()).Info("keystore entry stored", "appkey", args[0], "hash", cfg.Server.RedisHash)
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	c.Flags().String("redis-url", "", "redis connection URL")
	c.Flags().String("redis-hash", keystore.DefaultRedisHash, "redis hash holding appkey -> secret")
	return c
}
