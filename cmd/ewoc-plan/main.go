// ewoc-plan generates, reprocesses and publishes EWoC work plans.
//
// Usage:
//
//	ewoc-plan generate --tiles 31TCJ --start 2020-03-01 --end 2020-10-31 --out plan.json
//	ewoc-plan reproc --plan plan.json --bucket ewoc-prd --prefix ARD/31TCJ --out reproc.json
//	ewoc-plan push-db --plan s3://ewoc-prd/plans/46172.json
//	ewoc-plan merge --out aez.json tile1.json tile2.json
//	ewoc-plan serve
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/robert-malhotra/ewoc-work-plan/internal/app"
	"github.com/robert-malhotra/ewoc-work-plan/internal/config"
	"github.com/robert-malhotra/ewoc-work-plan/internal/objstore"
	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "ewoc-plan",
		Usage:   "Build EWoC work plans from the Sentinel-1, Sentinel-2 and Landsat-8 catalogs",
		Version: fmt.Sprintf("%s (commit: %s, plan format %s)", version, commit, workplan.Version),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
		},

		Commands: []*cli.Command{
			generateCommand(),
			reprocCommand(),
			pushDBCommand(),
			mergeCommand(),
			serveCommand(),
		},
	}
}

// loadConfig loads the configuration and applies the global flags. Logs go
// to stderr so plans can be written to stdout.
func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, app.NewLogger(cfg.Logging.Level, cfg.Logging.Format, c.App.ErrWriter), nil
}

// setup builds the runtime. The returned context is cancelled on SIGINT or
// SIGTERM.
func setup(c *cli.Context) (*app.App, context.Context, func(), error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("failed to release resources", slog.String("error", err.Error()))
		}
		stop()
	}
	return a, ctx, cleanup, nil
}

// readPlan loads a plan from a local path or an s3:// reference.
func readPlan(ctx context.Context, objects *objstore.Client, ref string) (*workplan.WorkPlan, error) {
	if !strings.HasPrefix(ref, "s3://") {
		return workplan.Load(ref)
	}
	data, err := objects.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return workplan.Decode(bytes.NewReader(data))
}

// writePlan writes a plan to a local path, to stdout for "-", or to an
// s3:// reference.
func writePlan(ctx context.Context, objects *objstore.Client, wp *workplan.WorkPlan, out string, stdout io.Writer) error {
	switch {
	case out == "" || out == "-":
		return wp.Encode(stdout)
	case strings.HasPrefix(out, "s3://"):
		bucket, key, err := objstore.ParseURI(out)
		if err != nil {
			return err
		}
		data, err := wp.Bytes()
		if err != nil {
			return err
		}
		return objects.Upload(ctx, bucket, key, data, "application/json")
	default:
		return wp.Save(out)
	}
}
