package commands

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type providersResponse struct {
	Providers []struct {
		Name    string `json:"name"`
		Kind    string `json:"kind"`
		Default bool   `json:"default"`
		Healthy bool   `json:"healthy"`
	} `json:"providers"`
	Count int `json:"count"`
}

// NewProvidersCommand creates the providers subcommand.
func NewProvidersCommand() *cobra.Command {
	var (
		host  string
		port  int
		token string
	)

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage chat providers",
		Long:  `List, add and remove providers on a running gateway.`,
		Example: `  chathub providers
  chathub providers add --name mychat --url https://chat.example.com --input "#prompt" --send "#go" --response ".answer"
  chathub providers remove mychat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag(cmd)
			return runProvidersList(cmd.OutOrStdout(), gatewayAddr(host, port), token)
		},
	}

	addGatewayFlags(cmd, &host, &port, &token)

	cmd.AddCommand(newProvidersAddCommand())
	cmd.AddCommand(newProvidersRemoveCommand())

	return cmd
}

func runProvidersList(out io.Writer, baseURL, token string) error {
	var resp providersResponse
	res, err := newClient(baseURL, token).R().
		SetResult(&resp).
		Get("/v1/providers")
	if err != nil {
		return fmt.Errorf("gateway not reachable: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("gateway returned %s", res.Status())
	}

	if resp.Count == 0 {
		fmt.Fprintln(out, "No providers registered.")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Name", "Kind", "Default", "Healthy"})
	table.SetBorder(false)
	for _, p := range resp.Providers {
		def := ""
		if p.Default {
			def = "*"
		}
		health := "no"
		if p.Healthy {
			health = "yes"
		}
		table.Append([]string{p.Name, p.Kind, def, health})
	}
	table.Render()
	return nil
}

func newProvidersAddCommand() *cobra.Command {
	var (
		host  string
		port  int
		token string

		name       string
		baseURL    string
		model      string
		input      string
		send       string
		response   string
		newChat    string
		loading    string
		useXPath   bool
		setDefault bool
		persist    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a custom web chat provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag(cmd)

			body := map[string]interface{}{
				"name":     name,
				"baseUrl":  baseURL,
				"model":    model,
				"useXpath": useXPath,
				"selectors": map[string]string{
					"input":      input,
					"sendButton": send,
					"response":   response,
					"newChat":    newChat,
					"loading":    loading,
				},
				"setDefault": setDefault,
				"persist":    persist,
			}

			res, err := newClient(gatewayAddr(host, port), token).R().
				SetBody(body).
				Post("/v1/providers/custom")
			if err != nil {
				return fmt.Errorf("gateway not reachable: %w", err)
			}
			if res.IsError() {
				return fmt.Errorf("gateway returned %s: %s", res.Status(), res.String())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Provider %q registered.\n", name)
			return nil
		},
	}

	addGatewayFlags(cmd, &host, &port, &token)
	cmd.Flags().StringVar(&name, "name", "", "Provider name")
	cmd.Flags().StringVar(&baseURL, "url", "", "Chat page URL")
	cmd.Flags().StringVar(&model, "model", "", "Model label to report")
	cmd.Flags().StringVar(&input, "input", "", "Input selector")
	cmd.Flags().StringVar(&send, "send", "", "Send button selector")
	cmd.Flags().StringVar(&response, "response", "", "Response selector")
	cmd.Flags().StringVar(&newChat, "new-chat", "", "New chat selector")
	cmd.Flags().StringVar(&loading, "loading", "", "Loading indicator selector")
	cmd.Flags().BoolVar(&useXPath, "xpath", false, "Treat selectors as XPath expressions")
	cmd.Flags().BoolVar(&setDefault, "default", false, "Make this the default provider")
	cmd.Flags().BoolVar(&persist, "persist", false, "Persist the provider to the config file")

	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("send")
	_ = cmd.MarkFlagRequired("response")

	return cmd
}

func newProvidersRemoveCommand() *cobra.Command {
	var (
		host  string
		port  int
		token string
	)

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a provider from a running gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFlag(cmd)

			res, err := newClient(gatewayAddr(host, port), token).R().
				Delete("/v1/providers/" + args[0])
			if err != nil {
				return fmt.Errorf("gateway not reachable: %w", err)
			}
			if res.IsError() {
				return fmt.Errorf("gateway returned %s: %s", res.Status(), res.String())
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Provider %q removed.\n", args[0])
			return nil
		},
	}

	addGatewayFlags(cmd, &host, &port, &token)
	return cmd
}
