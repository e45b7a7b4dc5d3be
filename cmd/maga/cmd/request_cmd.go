package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"maga/internal/client"
	"maga/internal/config"
	"maga/internal/logging"
	"maga/internal/protocol"
	"maga/internal/transport"

	"github.com/spf13/cobra"
)

// requestInput is the JSON accepted by `maga request`.
type requestInput struct {
	ID      protocol.Scalar   `json:"id"`
	Service string            `json:"service"`
	URL     string            `json:"url"`
	Data    json.RawMessage   `json:"data"`
	Page    int               `json:"page"`
	Headers map[string]string `json:"headers"`
	Options struct {
		// Timeout is in milliseconds.
		Timeout  int   `json:"timeout"`
		Required *bool `json:"required"`
	} `json:"options"`
}

func (in requestInput) config() client.RequestConfig {
	cfg := client.RequestConfig{
		ID:      in.ID.String(),
		Service: in.Service,
		URL:     in.URL,
		Page:    in.Page,
		Options: client.CallOptions{
			Timeout:  time.Duration(in.Options.Timeout) * time.Millisecond,
			Required: in.Options.Required,
		},
	}
	if len(in.Data) > 0 {
		cfg.Data = in.Data
	}
	if len(in.Headers) > 0 {
		cfg.Headers = make(http.Header, len(in.Headers))
		for k, v := range in.Headers {
			cfg.Headers.Set(k, v)
		}
	}
	return cfg
}

func NewRequestCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "request <json|->",
		Short: "Send one request, e.g. '{\"service\":\"/api/echo\",\"data\":{}}'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readArg(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			cl, err := newClient(cfg, logging.FromContext(cmd.Context()))
			if err != nil {
				return err
			}
			return runRequest(cmd.Context(), cl, raw, cmd.OutOrStdout())
		},
	}
	c.Flags().Duration("timeout", 0, "default call timeout (e.g. 5s)")
	c.Flags().Bool("insecure", false, "skip TLS verification of the gateway")
	return c
}

func runRequest(ctx context.Context, cl *client.Client, raw []byte, out io.Writer) error {
	var in requestInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	res, err := cl.Request(ctx, in.config())
	if err != nil {
		return err
	}
	if res.Failed() {
		return printJSON(out, res.Error)
	}
	return printJSON(out, res)
}

func newClient(cfg *config.Config, logger logging.Logger) (*client.Client, error) {
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	required := cfg.Client.Required
	return client.New(client.Options{
		Key:      cfg.Client.Key,
		Secret:   cfg.Client.Secret,
		Host:     cfg.Client.Host,
		Timeout:  cfg.Client.Timeout,
		Required: &required,
		Logger:   logger,
		Transport: transport.NewHTTP(transport.Options{
			InsecureSkipVerify: cfg.Client.InsecureSkipVerify,
		}),
	})
}

// readArg returns arg itself, or stdin when arg is "-".
func readArg(stdin io.Reader, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	return io.ReadAll(stdin)
}
