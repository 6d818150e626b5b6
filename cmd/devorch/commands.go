package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loykin/devorch/pkg/client"
)

func newAPIClient(f *ClientFlags) (*client.Client, error) {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	cfg.Insecure = f.Insecure
	if f.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{Enabled: true, CACert: f.CACert}
	}
	return client.New(cfg)
}

func createStartCommand(f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <frontend|backend> <directory>",
		Short: "Start the frontend or backend dev process",
		Long: `Ask a running devorch server to start one of its dev processes.
A relative directory is resolved against the current working directory
before it is sent, so the server sees the same path you do.

Examples:
  devorch start frontend ./web
  devorch start backend ./api --api-url=http://127.0.0.1:8080/api/viton`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			c, err := newAPIClient(f)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var res client.StartResult
			switch args[0] {
			case "frontend":
				res, err = c.StartFrontend(ctx, dir)
			case "backend":
				res, err = c.StartBackend(ctx, dir)
			default:
				return fmt.Errorf("unknown role %q (want frontend or backend)", args[0])
			}
			return report(cmd, res, err)
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

func createStatusCommand(f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the frontend and backend are running",
		Long: `Print the status of both dev processes as JSON.

Examples:
  devorch status
  devorch status --api-url=https://host:8443/api/viton --insecure`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(f)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			return report(cmd, st, err)
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

func createStopCommand(f *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop every running dev process",
		Long: `Signal the frontend and backend to terminate and print which roles were stopped.

Examples:
  devorch stop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(f)
			if err != nil {
				return err
			}
			res, err := c.StopAll(cmd.Context())
			return report(cmd, res, err)
		},
	}
	addClientFlags(cmd, f)
	return cmd
}

// report prints v and returns err. A structured server failure is still
// printed so the message and error detail reach the user.
func report(cmd *cobra.Command, v any, err error) error {
	var apiErr *client.APIError
	if err == nil || errors.As(err, &apiErr) {
		printJSON(cmd.OutOrStdout(), v)
	}
	return err
}
