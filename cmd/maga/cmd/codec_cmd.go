package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"maga/internal/client"
	"maga/internal/config"
	"maga/internal/keystore"
	"maga/internal/logging"
	"maga/internal/protocol"
	"maga/internal/server"

	"github.com/spf13/cobra"
)

type encodeOutput struct {
	Payload string        `json:"payload"`
	Headers protocol.Meta `json:"headers"`
}

func NewEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <json|->",
		Short: "Seal {id, data} with the client key and print payload and headers",
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
			return runEncode(cl, raw, cmd.OutOrStdout())
		},
	}
}

func runEncode(cl *client.Client, raw []byte, out io.Writer) error {
	var body protocol.Request
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("parse body: %w", err)
	}
	env, err := cl.Encode(body)
	if err != nil {
		return err
	}
	return printJSON(out, encodeOutput{Payload: env.Base64(), Headers: env.Meta})
}

func NewDecodeCmd() *cobra.Command {
	var metaJSON string
	c := &cobra.Command{
		Use:   "decode <base64|->",
		Short: "Open a payload; with --meta the headers and signature are validated",
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
			return runDecode(cmd.Context(), cfg, logging.FromContext(cmd.Context()), strings.TrimSpace(string(raw)), metaJSON, cmd.OutOrStdout())
		},
	}
	c.Flags().StringVar(&metaJSON, "meta", "", `envelope headers as JSON, e.g. '{"x-mg-appkey":"..."}'`)
	return c
}

func runDecode(ctx context.Context, cfg *config.Config, logger logging.Logger, encoded, metaJSON string, out io.Writer) error {
	if metaJSON == "" {
		cl, err := newClient(cfg, logger)
		if err != nil {
			return err
		}
		plain, err := cl.Decode(protocol.DecodeInput{Encoded: encoded})
		if err != nil {
			return err
		}
		return printJSON(out, plain)
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(metaJSON), &fields); err != nil {
		return fmt.Errorf("parse meta: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrInvalidPayload, err)
	}

	keys := cfg.Keys()
	if cfg.Client.Key != "" && cfg.Client.Secret != "" {
		keys[cfg.Client.Key] = cfg.Client.Secret
	}
	srv, err := server.New(server.Options{Keystore: keystore.Map(keys), Logger: logger})
	if err != nil {
		return err
	}
	req, err := srv.Decode(ctx, protocol.MetaFromMap(fields), payload)
	if err != nil {
		return err
	}
	return printJSON(out, req)
}
