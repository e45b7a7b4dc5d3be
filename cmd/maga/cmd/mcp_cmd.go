package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"maga/internal/client"
	"maga/internal/logging"
	"maga/internal/protocol"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

const mcpServerVersion = "v1.0.0"

func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve request/encode/decode as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			logger := logging.FromContext(cmd.Context())
			cl, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("mcp server starting", "key", cl.Key(), "host", cfg.Client.Host)
			return newMCPServer(cl).Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

type requestToolInput struct {
	Service   string            `json:"service,omitempty" jsonschema:"service path starting with /, appended to the configured host"`
	URL       string            `json:"url,omitempty" jsonschema:"absolute URL overriding host + service"`
	ID        string            `json:"id,omitempty" jsonschema:"correlation id, defaults to the current epoch milliseconds"`
	Data      map[string]any    `json:"data,omitempty" jsonschema:"request data object"`
	Page      int               `json:"page,omitempty" jsonschema:"page number copied into data.page"`
	Headers   map[string]string `json:"headers,omitempty" jsonschema:"extra HTTP headers; x-mg-* headers are always overwritten"`
	TimeoutMs int               `json:"timeout_ms,omitempty" jsonschema:"per call timeout in milliseconds"`
}

type encodeToolInput struct {
	ID   string         `json:"id" jsonschema:"correlation id"`
	Data map[string]any `json:"data,omitempty" jsonschema:"request data object"`
}

type decodeToolInput struct {
	Payload string `json:"payload" jsonschema:"base64 encoded payload"`
}

type mcpTools struct {
	client *client.Client
}

func newMCPServer(cl *client.Client) *mcp.Server {
	tools := &mcpTools{client: cl}
	s := mcp.NewServer(&mcp.Implementation{Name: "maga", Version: mcpServerVersion}, nil)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "request",
		Description: "Send one sealed request to the gateway and return {id, data, state, headers}.",
	}, tools.request)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "encode",
		Description: "Seal {id, data} with the configured key and return the base64 payload and headers.",
	}, tools.encode)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "decode",
		Description: "Open a base64 payload with the configured secret and return the plaintext body.",
	}, tools.decode)
	return s
}

func (t *mcpTools) request(ctx context.Context, _ *mcp.CallToolRequest, in requestToolInput) (*mcp.CallToolResult, any, error) {
	required := false
	cfg := client.RequestConfig{
		ID:      in.ID,
		Service: in.Service,
		URL:     in.URL,
		Page:    in.Page,
		Options: client.CallOptions{
			Timeout:  time.Duration(in.TimeoutMs) * time.Millisecond,
			Required: &required,
		},
	}
	if in.Data != nil {
		cfg.Data = in.Data
	}
	if len(in.Headers) > 0 {
		cfg.Headers = make(http.Header, len(in.Headers))
		for k, v := range in.Headers {
			cfg.Headers.Set(k, v)
		}
	}

	res, err := t.client.Request(ctx, cfg)
	if err != nil {
		return errorResult(err), nil, nil
	}
	if res.Failed() {
		return errorResult(res.Error), nil, nil
	}
	return textResult(res), nil, nil
}

func (t *mcpTools) encode(_ context.Context, _ *mcp.CallToolRequest, in encodeToolInput) (*mcp.CallToolResult, any, error) {
	body := protocol.Request{ID: protocol.ScalarString(in.ID)}
	if in.Data != nil {
		data, err := protocol.CanonicalJSON(in.Data)
		if err != nil {
			return errorResult(err), nil, nil
		}
		body.Data = data
	}
	env, err := t.client.Encode(body)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(encodeOutput{Payload: env.Base64(), Headers: env.Meta}), nil, nil
}

func (t *mcpTools) decode(_ context.Context, _ *mcp.CallToolRequest, in decodeToolInput) (*mcp.CallToolResult, any, error) {
	plain, err := t.client.Decode(protocol.DecodeInput{Encoded: in.Payload})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(plain), nil, nil
}

func textResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(b)}}}
}

func errorResult(err error) *mcp.CallToolResult {
	text := err.Error()
	if perr, ok := protocol.AsError(err); ok {
		if b, mErr := json.Marshal(perr); mErr == nil {
			text = string(b)
		}
	}
	return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
