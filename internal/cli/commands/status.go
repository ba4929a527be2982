package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// StatusResponse mirrors the gateway /api/status payload.
type StatusResponse struct {
	Running       bool            `json:"running"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptimeSeconds"`
	Providers     map[string]bool `json:"providers"`
	Sessions      struct {
		Total       int            `json:"total"`
		Connections int            `json:"connections"`
		ByProvider  map[string]int `json:"byProvider"`
	} `json:"sessions"`
	Goroutines int    `json:"goroutines"`
	MemoryMB   uint64 `json:"memoryMB"`
}

// NewStatusCommand creates the status subcommand.
func NewStatusCommand() *cobra.Command {
	var (
		host       string
		port       int
		token      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  `Display the current status of the ChatHub gateway including provider health and active sessions.`,
		Example: `  chathub status
  chathub status --host 127.0.0.1 --port 8090 --json`,
		Run: func(cmd *cobra.Command, args []string) {
			applyConfigFlag(cmd)
			runStatus(cmd.OutOrStdout(), gatewayAddr(host, port), token, jsonOutput)
		},
	}

	addGatewayFlags(cmd, &host, &port, &token)
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func runStatus(out io.Writer, baseURL, token string, jsonOutput bool) {
	var status StatusResponse
	resp, err := newClient(baseURL, token).R().
		SetResult(&status).
		Get("/api/status")
	if err == nil && resp.IsError() {
		err = fmt.Errorf("gateway returned %s", resp.Status())
	}

	if jsonOutput {
		if err != nil {
			fmt.Fprintf(out, "{\"running\": false, \"error\": %q}\n", err.Error())
			return
		}
		data, _ := json.MarshalIndent(status, "", "  ")
		fmt.Fprintln(out, string(data))
		return
	}

	fmt.Fprintln(out, "ChatHub Status")
	fmt.Fprintln(out, "==============")
	fmt.Fprintln(out)

	if err != nil {
		fmt.Fprintln(out, "Gateway:   not running")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Start the gateway with: chathub serve")
		return
	}

	healthy := 0
	for _, ok := range status.Providers {
		if ok {
			healthy++
		}
	}

	fmt.Fprintf(out, "Gateway:   running at %s\n", baseURL)
	fmt.Fprintf(out, "Version:   %s\n", status.Version)
	fmt.Fprintf(out, "Uptime:    %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(out, "Providers: %d/%d healthy\n", healthy, len(status.Providers))
	fmt.Fprintf(out, "Sessions:  %d active, %d connections\n", status.Sessions.Total, status.Sessions.Connections)
	fmt.Fprintf(out, "Memory:    %d MB, %d goroutines\n", status.MemoryMB, status.Goroutines)
}
