package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ignite/kpi-rollup/internal/domain"
	"github.com/ignite/kpi-rollup/internal/rollup"
)

type opener func(ctx context.Context, configPath string) (*services, error)

type cli struct {
	open       opener
	configPath string
	tenant     string
	now        func() time.Time
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open, now: time.Now}

	root := &cobra.Command{
		Use:   "kpictl",
		Short: "Operate the KPI rollup engine",
		Long:  "kpictl computes weekly and monthly KPI summaries, backfills history and inspects rollup state.",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Config YAML path (default: $CONFIG_PATH or config/config.yaml)")
	root.PersistentFlags().StringVar(&c.tenant, "tenant", "", "Tenant (business) id")
	_ = root.MarkPersistentFlagRequired("tenant")

	root.AddCommand(
		c.weeklyCmd(),
		c.monthlyCmd(),
		c.aggregateCmd(),
		c.recalculateCmd(),
		c.autoCmd(),
		c.statusCmd(),
		c.trendCmd(),
	)
	return root
}

// run opens the services, cancels on SIGINT/SIGTERM and prints the result
// as indented JSON.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, s *services) (any, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := c.open(ctx, c.configPath)
	if err != nil {
		return err
	}
	if s.close != nil {
		defer s.close()
	}

	out, err := fn(ctx, s)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// date parses a YYYY-MM-DD flag value, defaulting to today.
func (c *cli) date(s string) (time.Time, error) {
	if s == "" {
		return domain.Date(c.now()), nil
	}
	return domain.ParseDate(s)
}

func jobContext(ctx context.Context) context.Context {
	return rollup.WithJobID(ctx, uuid.NewString())
}

func (c *cli) weeklyCmd() *cobra.Command {
	var metric, date string
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Roll up (or read) the week containing a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.date(date)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, s *services) (any, error) {
				if readOnly {
					return s.engine.GetWeekly(ctx, c.tenant, metric, d)
				}
				return s.engine.RollupWeek(jobContext(ctx), c.tenant, metric, d)
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "Metric code")
	cmd.Flags().StringVar(&date, "date", "", "Any date inside the week (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&readOnly, "read", false, "Print the stored summary instead of recomputing")
	_ = cmd.MarkFlagRequired("metric")
	return cmd
}

func (c *cli) monthlyCmd() *cobra.Command {
	var metric string
	var year, month int
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Roll up (or read) one calendar month",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, month = c.defaultMonth(year, month)
			return c.run(cmd, func(ctx context.Context, s *services) (any, error) {
				if readOnly {
					return s.engine.GetMonthly(ctx, c.tenant, metric, year, month)
				}
				return s.engine.RollupMonth(jobContext(ctx), c.tenant, metric, year, month)
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "Metric code")
	cmd.Flags().IntVar(&year, "year", 0, "Year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (default current)")
	cmd.Flags().BoolVar(&readOnly, "read", false, "Print the stored summary instead of recomputing")
	_ = cmd.MarkFlagRequired("metric")
	return cmd
}

func (c *cli) defaultMonth(year, month int) (int, int) {
	now := c.now()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	return year, month
}

func (c *cli) aggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Roll up every selected metric of the tenant for one period",
	}

	var week string
	weekly := &cobra.Command{
		Use:   "weekly",
		Short: "Aggregate all metrics for the week containing a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.date(week)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, s *services) (any, error) {
				return s.orch.AggregateAllWeekly(ctx, c.tenant, d)
			})
		},
	}
	weekly.Flags().StringVar(&week, "week", "", "Any date inside the week (default today)")

	var year, month int
	monthly := &cobra.Command{
		Use:   "monthly",
		Short: "Aggregate all metrics for one month",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, month = c.defaultMonth(year, month)
			return c.run(cmd, func(ctx context.Context, s *services) (any, error) {
				return s.orch.AggregateAllMonthly(ctx, c.tenant, year, month)
			})
		},
	}
	monthly.Flags().IntVar(&year, "year", 0, "Year (default current)")
	monthly.Flags().IntVar(&month, "month", 0, "Month 1-12 (default current)")

	cmd.AddCommand(weekly, monthly)
	return cmd
}

func (c *cli) recalculateCmd() *cobra.Command {
	var metric, start, end string
	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Recompute every week and month intersecting a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := domain.ParseDate(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			to, err := c.date(end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			return c.run(cmd, func(ctx context.Context, s *services) (any, error) {
				return s.orch.Recalculate(ctx, c.tenant, metric, from, to)
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "Metric code")
	cmd.Flags().StringVar(&start, "start", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last date (default today)")
	_ = cmd.MarkFlagRequired("metric")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func (c *cli) autoCmd() *cobra.Command {
	var upTo string
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Backfill every week and month from the earliest daily value",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.date(upTo)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, s *services) (any, error) {
				return s.orch.AutoAggregate(ctx, c.tenant, d)
			})
		},
	}
	cmd.Flags().StringVar(&upTo, "up-to", "", "Horizon date (default today)")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which summaries exist around a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.date(date)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, s *services) (any, error) {
				return s.orch.Status(ctx, c.tenant, d)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date to inspect (default today)")
	return cmd
}

func (c *cli) trendCmd() *cobra.Command {
	var metric string
	var window int
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Analyze the recent weekly trend of a metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, s *services) (any, error) {
				return s.trends.Analyze(ctx, c.tenant, metric, window)
			})
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "Metric code")
	cmd.Flags().IntVar(&window, "window", 0, "Number of weeks (default from config)")
	_ = cmd.MarkFlagRequired("metric")
	return cmd
}
