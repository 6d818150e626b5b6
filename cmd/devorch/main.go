package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// ClientFlags configure the commands that talk to a running server.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
	CACert     string
}

const defaultAPIURL = "http://localhost:8080/api/viton"

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	clientFlags := &ClientFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(clientFlags),
		createStatusCommand(clientFlags),
		createStopCommand(clientFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "devorch",
		Short: "Development server that launches the frontend and backend dev processes",
		Long: `Devorch serves the built frontend, proxies the running dev servers and
exposes an HTTP API to start, inspect and stop them.

Examples:
  devorch serve                               # Start the server with defaults
  devorch serve devorch.toml                  # Start with a config file
  devorch start frontend ./web                # Ask a running server to start "npm run dev" in ./web
  devorch status --api-url=http://host:8080/api/viton`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addClientFlags(cmd *cobra.Command, f *ClientFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", defaultAPIURL, "orchestrator API base URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA certificate used to verify the server")
}
