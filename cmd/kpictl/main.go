// Command kpictl runs rollups, backfills and diagnostics against the KPI
// database from the command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ignite/kpi-rollup/internal/app"
	"github.com/ignite/kpi-rollup/internal/backfill"
	"github.com/ignite/kpi-rollup/internal/rollup"
	"github.com/ignite/kpi-rollup/internal/trend"
)

// services is what every subcommand needs.
type services struct {
	engine *rollup.Service
	orch   *backfill.Orchestrator
	trends *trend.Analyzer
	close  func()
}

func openServices(ctx context.Context, configPath string) (*services, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &services{engine: a.Engine, orch: a.Orchestrator, trends: a.Trends, close: a.Close}, nil
}

func main() {
	if err := newRootCmd(openServices).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
