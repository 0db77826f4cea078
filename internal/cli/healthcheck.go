package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"grandbridge/internal/config"
	"grandbridge/internal/probe"
)

func NewHealthcheckCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:          "healthcheck",
		Short:        "Query the gRPC health service of a running server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, _ := config.Load(rootOpts.EnvFiles...)
				addr = "localhost:" + cfg.GRPCPort
			}
			return runHealthcheck(cmd, addr, timeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "health service address (default localhost:$GRPC_PORT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
	return cmd
}

func runHealthcheck(cmd *cobra.Command, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	res, err := probe.Check(ctx, addr, probe.Service)
	if err != nil {
		return err
	}
	out, err := probe.Format(res)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", probe.Service, res.GetStatus())
	}
	return nil
}
