package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"maga/internal/config"
	"maga/internal/gateway"
	"maga/internal/keystore"
	"maga/internal/logging"
	"maga/internal/metrics"
	"maga/internal/server"

	"github.com/spf13/cobra"
)

func NewServeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			s, err := newGatewayServer(cfg, logging.FromContext(ctx))
			if err != nil {
				return err
			}
			defer s.close()
			return s.run(ctx)
		},
	}
	c.Flags().String("listen", ":8090", "listen address")
	c.Flags().String("redis-url", "", "redis connection URL for the keystore (optional)")
	c.Flags().String("redis-hash", keystore.DefaultRedisHash, "redis hash holding appkey -> secret")
	c.Flags().Float64("rate-limit", 0, "requests per second per appkey (0 disables)")
	c.Flags().Int("rate-burst", 20, "rate limit burst per appkey")
	return c
}

type gatewayServer struct {
	listen  string
	handler http.Handler
	redis   *keystore.Redis
	logger  logging.Logger
}

func newGatewayServer(cfg *config.Config, logger logging.Logger) (*gatewayServer, error) {
	ks, redisKS, err := buildKeystore(cfg)
	if err != nil {
		return nil, err
	}
	srv, err := server.New(server.Options{Keystore: ks, Logger: logger, Metrics: true})
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(gateway.Options{
		Server:  srv,
		Limiter: gateway.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 0),
		Logger:  logger,
		Metrics: true,
	})
	if err != nil {
		return nil, err
	}
	return &gatewayServer{
		listen:  cfg.Server.Listen,
		handler: newServeMux(gw),
		redis:   redisKS,
		logger:  logger,
	}, nil
}

// buildKeystore chains the static config keys (and the client key, so a
// local client can talk to the gateway) with Redis when configured.
// staticKeys is the configured keystore plus the client's own key, so a
// single config can both serve and call.
func staticKeys(cfg *config.Config) keystore.Map {
	keys := cfg.Keys()
	if cfg.Client.Key != "" && cfg.Client.Secret != "" {
		if _, ok := keys[cfg.Client.Key]; !ok {
			keys[cfg.Client.Key] = cfg.Client.Secret
		}
	}
	return keystore.Map(keys)
}

func buildKeystore(cfg *config.Config) (keystore.Keystore, *keystore.Redis, error) {
	chain := keystore.Chain{staticKeys(cfg)}

	if strings.TrimSpace(cfg.Server.RedisURL) == "" {
		return chain, nil, nil
	}
	redisKS, err := keystore.NewRedisFromURL(cfg.Server.RedisURL, cfg.Server.RedisHash)
	if err != nil {
		return nil, nil, err
	}
	return append(chain, redisKS), redisKS, nil
}

func newServeMux(gw http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/", gw)
	return mux
}

func (s *gatewayServer) run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("gateway listening", "addr", s.listen, "redis_keystore", s.redis != nil)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *gatewayServer) close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
