package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ironclad/backend/internal/client"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/chaos"
)

type rootOptions struct {
	addr    string
	timeout time.Duration
	retries int
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "chaosctl",
		Short:        "Control fault injection on a running server",
		SilenceUsage: true,
	}

	defaultAddr := os.Getenv("CHAOSCTL_ADDR")
	if defaultAddr == "" {
		defaultAddr = client.DefaultAddr
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", defaultAddr, "server base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().IntVar(&opts.retries, "retries", 2, "retries on connection failure")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON")

	root.AddCommand(
		statusCmd(opts),
		enableCmd(opts),
		disableCmd(opts),
		latencyCmd(opts),
		errorsCmd(opts),
		healthCmd(opts),
		sloCmd(opts),
	)
	return root
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.addr, client.Options{
		Timeout:    o.timeout,
		MaxRetries: o.retries,
	})
}

func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the chaos configuration and injection counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := opts.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), stats)
			}

			out := cmd.OutOrStdout()
			printConfig(out, stats.Config)
			fmt.Fprintf(out, "requests:  %d\n", stats.Stats.TotalRequests)
			fmt.Fprintf(out, "delayed:   %d\n", stats.Stats.DelayedRequests)
			fmt.Fprintf(out, "failed:    %d\n", stats.Stats.FailedRequests)
			return nil
		},
	}
}

func enableCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Turn fault injection on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printUpdate(cmd, opts)(opts.client().Enable(cmd.Context()))
		},
	}
}

func disableCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn fault injection off and clear latency and error rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printUpdate(cmd, opts)(opts.client().Disable(cmd.Context()))
		},
	}
}

func latencyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "latency <ms>",
		Short: fmt.Sprintf("Inject a fixed delay (0-%d ms)", chaos.MaxLatencyMs),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("latency must be an integer number of milliseconds: %q", args[0])
			}
			return printUpdate(cmd, opts)(opts.client().SetLatency(cmd.Context(), ms))
		},
	}
}

func errorsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "errors <rate>",
		Short: "Fail a fraction of requests (0-1)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("error rate must be a number between 0 and 1: %q", args[0])
			}
			return printUpdate(cmd, opts)(opts.client().SetErrorRate(cmd.Context(), rate))
		},
	}
}

func healthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := opts.client().Health(cmd.Context())
			var apiErr *client.APIError
			if err != nil && !errors.As(err, &apiErr) {
				return err
			}

			if opts.json {
				if printErr := printJSON(cmd.OutOrStdout(), health); printErr != nil {
					return printErr
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "status:          %s\n", health.Status)
				fmt.Fprintf(out, "database:        %s\n", health.Checks.Database)
				fmt.Fprintf(out, "circuit breaker: %s\n", health.Checks.CircuitBreaker)
			}
			return err
		},
	}
}

func sloCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "slo",
		Short: "Show service level objectives and the error budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.client().SLOs(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), report)
			}

			out := cmd.OutOrStdout()
			for _, slo := range report.SLOs {
				fmt.Fprintf(out, "%-13s target %.4f  current %.4f\n", slo.Name, slo.Target, slo.Current)
			}
			budget := report.ErrorBudget
			fmt.Fprintf(out, "error budget  %.2f of %.2f minutes left (%.2f%%) over %d days\n",
				budget.Remaining, budget.Total, budget.Percentage, report.PeriodDays)
			return nil
		},
	}
}

func printUpdate(cmd *cobra.Command, opts *rootOptions) func(client.ChaosUpdate, error) error {
	return func(update client.ChaosUpdate, err error) error {
		if err != nil {
			return err
		}
		if opts.json {
			return printJSON(cmd.OutOrStdout(), update)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, update.Message)
		if update.Config != nil {
			printConfig(out, *update.Config)
		}
		return nil
	}
}

func printConfig(out io.Writer, cfg chaos.Config) {
	fmt.Fprintf(out, "enabled:   %t\n", cfg.Enabled)
	fmt.Fprintf(out, "latency:   %dms\n", cfg.LatencyMs)
	fmt.Fprintf(out, "errorRate: %g\n", cfg.ErrorRate)
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
