package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type chatResponse struct {
	Response  string `json:"response"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	SessionID string `json:"sessionId"`
}

// NewChatCommand creates the chat subcommand.
func NewChatCommand() *cobra.Command {
	var (
		host  string
		port  int
		token string

		providerName string
		sessionID    string
		stream       bool
	)

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a one-off chat message through the gateway",
		Example: `  chathub chat "What is the capital of France?"
  chathub chat --provider claude --stream "Explain goroutines"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag(cmd)

			message := strings.Join(args, " ")
			baseURL := gatewayAddr(host, port)
			body := map[string]interface{}{
				"message":   message,
				"provider":  providerName,
				"sessionId": sessionID,
			}

			if stream {
				return runChatStream(cmd.OutOrStdout(), baseURL, token, body)
			}
			return runChat(cmd.OutOrStdout(), baseURL, token, body)
		},
	}

	addGatewayFlags(cmd, &host, &port, &token)
	cmd.Flags().StringVar(&providerName, "provider", "", "Provider name (default: gateway default)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream the response as it is generated")

	return cmd
}

func runChat(out io.Writer, baseURL, token string, body map[string]interface{}) error {
	var resp chatResponse
	res, err := newClient(baseURL, token).R().
		SetBody(body).
		SetResult(&resp).
		Post("/v1/chat/completions")
	if err != nil {
		return fmt.Errorf("gateway not reachable: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("gateway returned %s: %s", res.Status(), res.String())
	}

	fmt.Fprintln(out, resp.Response)
	fmt.Fprintf(out, "\n[%s, session %s]\n", resp.Provider, resp.SessionID)
	return nil
}

// runChatStream consumes the SSE stream and prints deltas as they arrive.
func runChatStream(out io.Writer, baseURL, token string, body map[string]interface{}) error {
	client := newClient(baseURL, token)
	client.SetTimeout(0) // streaming responses can run long
	client.SetDoNotParseResponse(true)

	res, err := client.R().
		SetBody(body).
		Post("/v1/chat/stream")
	if err != nil {
		return fmt.Errorf("gateway not reachable: %w", err)
	}
	raw := res.RawBody()
	defer raw.Close()

	if res.StatusCode() >= 400 {
		data, _ := io.ReadAll(raw)
		return fmt.Errorf("gateway returned %s: %s", res.Status(), string(data))
	}

	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var event struct {
			Delta string `json:"delta"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		if event.Error != "" {
			fmt.Fprintln(out)
			return fmt.Errorf("stream error: %s", event.Error)
		}
		fmt.Fprint(out, event.Delta)
	}
	fmt.Fprintln(out)
	return scanner.Err()
}
