package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
	"github.com/robert-malhotra/ewoc-work-plan/pkg/server"
)

func reprocCommand() *cli.Command {
	return &cli.Command{
		Name:  "reproc",
		Usage: "Drop the products whose ARD outputs already exist from a plan",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan",
				Usage:    "Plan path or s3:// reference",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "bucket",
				Usage: "ARD bucket (defaults to S3_OUTPUT_BUCKET)",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "ARD key prefix (defaults to S3_OUTPUT_PREFIX)",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "-",
				Usage:   "Output path, s3:// reference or - for stdout",
			},
		},
		Action: func(c *cli.Context) error {
			a, ctx, cleanup, err := setup(c)
			if err != nil {
				return err
			}
			defer cleanup()

			bucket, prefix := c.String("bucket"), c.String("prefix")
			if bucket == "" {
				bucket = a.Config().S3.OutputBucket
			}
			if prefix == "" {
				prefix = a.Config().S3.OutputPrefix
			}
			if bucket == "" {
				return errors.New("an ARD bucket is required, set --bucket or S3_OUTPUT_BUCKET")
			}

			wp, err := readPlan(ctx, a.Objects(), c.String("plan"))
			if err != nil {
				return err
			}
			out, err := wp.Reproc(ctx, a.Objects(), bucket, prefix, a.Logger())
			if err != nil {
				return fmt.Errorf("failed to reprocess plan: %w", err)
			}
			return writePlan(ctx, a.Objects(), out, c.String("out"), c.App.Writer)
		},
	}
}

func pushDBCommand() *cli.Command {
	return &cli.Command{
		Name:      "push-db",
		Usage:     "Store plans in the plan database",
		ArgsUsage: "<plan> [plan...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("at least one plan path or s3:// reference is required")
			}

			a, ctx, cleanup, err := setup(c)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := a.Store(ctx)
			if err != nil {
				return err
			}
			for _, ref := range c.Args().Slice() {
				wp, err := readPlan(ctx, a.Objects(), ref)
				if err != nil {
					return err
				}
				if err := st.Push(ctx, wp); err != nil {
					return err
				}
				a.Logger().Info("work plan stored", slog.String("plan_id", wp.ID), slog.String("source", ref))
			}
			return nil
		},
	}
}

func mergeCommand() *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Merge per-tile plans of one AEZ into a single plan",
		ArgsUsage: "<plan> [plan...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "-",
				Usage:   "Output path or - for stdout",
			},
		},
		Action: runMerge,
	}
}

// runMerge only touches local files and needs no runtime configuration.
func runMerge(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one plan path is required")
	}

	plans := make([]*workplan.WorkPlan, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		wp, err := workplan.Load(path)
		if err != nil {
			return err
		}
		plans = append(plans, wp)
	}

	merged, err := workplan.Merge(plans...)
	if err != nil {
		return err
	}
	if out := c.String("out"); out != "-" {
		return merged.Save(out)
	}
	return merged.Encode(c.App.Writer)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the work plan HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (defaults to SERVER_PORT)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, server.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer srv.Close(context.Background())

			return srv.ListenAndServe(ctx, cfg.Server, logger)
		},
	}
}
