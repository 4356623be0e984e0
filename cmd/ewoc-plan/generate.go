package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/robert-malhotra/ewoc-work-plan/internal/event"
	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
	"github.com/robert-malhotra/ewoc-work-plan/internal/tiles"
	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Build a work plan for a list of tiles",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "tiles",
				Aliases: []string{"t"},
				Usage:   "Tile ids (repeatable or comma separated)",
			},
			&cli.StringFlag{
				Name:  "tile-file",
				Usage: "CSV file of tile ids",
			},
			&cli.StringFlag{
				Name:  "grid",
				Usage: "GeoJSON tile grid (defaults to PLAN_TILE_GRID)",
			},
			&cli.StringFlag{
				Name:  "policy",
				Usage: "YAML selection policy (defaults to PLAN_POLICY_FILE)",
			},
			&cli.StringFlag{
				Name:  "orbit-file",
				Usage: "Per-tile orbit direction overrides, tile;direction CSV",
			},
			&cli.StringFlag{
				Name:  "start",
				Usage: "Season start date (YYYY-MM-DD)",
			},
			&cli.StringFlag{
				Name:  "end",
				Usage: "Season end date (YYYY-MM-DD)",
			},
			&cli.StringFlag{
				Name:  "processing-start",
				Usage: "Processing window start (defaults to the season start)",
			},
			&cli.StringFlag{
				Name:  "processing-end",
				Usage: "Processing window end (defaults to the season end)",
			},
			&cli.StringFlag{
				Name:  "mode",
				Value: string(workplan.ModeFull),
				Usage: "full, only_s1, only_s2 or only_l8",
			},
			&cli.StringFlag{
				Name:  "s1-provider",
				Usage: "Sentinel-1 provider (creodias, asf, aws)",
			},
			&cli.StringSliceFlag{
				Name:  "s2-provider",
				Usage: "Sentinel-2 providers in chain order (creodias, aws_cog)",
			},
			&cli.StringSliceFlag{
				Name:  "strategy",
				Usage: "Sentinel-2 processing level per provider (L1C, L2A)",
			},
			&cli.StringFlag{
				Name:  "l8-provider",
				Usage: "Landsat-8 provider (usgs_satapi_aws, creodias, astraea_eod)",
			},
			&cli.Float64Flag{
				Name:  "cloudcover",
				Usage: "Maximum cloud cover of searched optical products",
			},
			&cli.Float64Flag{
				Name:  "cloudcover-min",
				Usage: "Cloud cover threshold of the preferred Sentinel-2 subset",
			},
			&cli.IntFlag{
				Name:  "min-products",
				Usage: "Minimum Sentinel-2 products per year",
			},
			&cli.BoolFlag{
				Name:  "remove-l1c",
				Usage: "Drop L1C products from the final Sentinel-2 selection",
			},
			&cli.BoolFlag{
				Name:  "l8-sr",
				Usage: "Enable Landsat-8 surface reflectance for every tile",
			},
			&cli.IntFlag{
				Name:  "aez-id",
				Usage: "Agro-ecological zone id",
			},
			&cli.StringFlag{
				Name:  "user",
				Value: workplan.DefaultUser,
				Usage: "Plan owner",
			},
			&cli.StringFlag{
				Name:  "visibility",
				Value: workplan.DefaultVisibility,
				Usage: "Plan visibility",
			},
			&cli.StringFlag{
				Name:  "season-type",
				Value: workplan.DefaultSeasonType,
				Usage: "Season type",
			},
			&cli.StringFlag{
				Name:  "detector-set",
				Usage: "Crop detectors to run",
			},
			&cli.BoolFlag{
				Name:  "enable-sw",
				Usage: "Enable the spring wheat detector",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "-",
				Usage:   "Output path, s3:// reference or - for stdout",
			},
			&cli.BoolFlag{
				Name:  "push-db",
				Usage: "Store the plan in the plan database",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Announce the plan on NATS",
			},
		},
		Action: runGenerate,
	}
}

// generateOptions holds the parsed generate flags.
type generateOptions struct {
	Tiles           []string
	Start, End      string
	ProcessingStart string
	ProcessingEnd   string
	Mode            string
	S1Provider      string
	S2Providers     []string
	Strategy        []string
	L8Provider      string
	CloudCover      *float64
	CloudCoverMin   *float64
	MinProducts     *int
	RemoveL1C       bool
	L8SR            bool
	Meta            workplan.Meta
}

func optionsFrom(c *cli.Context) (generateOptions, error) {
	opts := generateOptions{
		Tiles:           c.StringSlice("tiles"),
		Start:           c.String("start"),
		End:             c.String("end"),
		ProcessingStart: c.String("processing-start"),
		ProcessingEnd:   c.String("processing-end"),
		Mode:            c.String("mode"),
		S1Provider:      c.String("s1-provider"),
		S2Providers:     c.StringSlice("s2-provider"),
		Strategy:        c.StringSlice("strategy"),
		L8Provider:      c.String("l8-provider"),
		RemoveL1C:       c.Bool("remove-l1c"),
		L8SR:            c.Bool("l8-sr"),
		Meta: workplan.Meta{
			User:        c.String("user"),
			Visibility:  c.String("visibility"),
			SeasonType:  c.String("season-type"),
			AEZID:       c.Int("aez-id"),
			DetectorSet: c.String("detector-set"),
			EnableSW:    c.Bool("enable-sw"),
		},
	}
	if c.IsSet("cloudcover") {
		v := c.Float64("cloudcover")
		opts.CloudCover = &v
	}
	if c.IsSet("cloudcover-min") {
		v := c.Float64("cloudcover-min")
		opts.CloudCoverMin = &v
	}
	if c.IsSet("min-products") {
		v := c.Int("min-products")
		opts.MinProducts = &v
	}

	if path := c.String("tile-file"); path != "" {
		ids, err := tiles.LoadList(path)
		if err != nil {
			return generateOptions{}, err
		}
		opts.Tiles = append(opts.Tiles, ids...)
	}
	return opts, nil
}

// buildRequest combines the flags with the loaded policy and overrides.
// Flags win over the policy file.
func buildRequest(opts generateOptions, policy workplan.Policy, overrides map[string]sar.Direction, s1Default, l8Default string) (workplan.Request, error) {
	if opts.CloudCover != nil {
		policy.CloudCoverMax = *opts.CloudCover
	}
	if opts.CloudCoverMin != nil {
		policy.CloudCoverMin = *opts.CloudCoverMin
	}
	if opts.MinProducts != nil {
		policy.MinProductsPerYear = *opts.MinProducts
	}
	if len(opts.S2Providers) > 0 {
		policy.Providers = opts.S2Providers
	}
	if len(opts.Strategy) > 0 {
		policy.Strategy = opts.Strategy
	}
	if opts.RemoveL1C {
		policy.RemoveL1C = true
	}

	var err error
	if policy.WindowStart, err = parseDate("start", opts.Start, policy.WindowStart); err != nil {
		return workplan.Request{}, err
	}
	if policy.WindowEnd, err = parseDate("end", opts.End, policy.WindowEnd); err != nil {
		return workplan.Request{}, err
	}

	mode, err := workplan.ParseMode(opts.Mode)
	if err != nil {
		return workplan.Request{}, err
	}

	req := workplan.Request{
		Tiles:          opts.Tiles,
		Policy:         policy,
		Mode:           mode,
		S1Provider:     s1Default,
		L8Provider:     l8Default,
		OrbitOverrides: overrides,
		L8EnableSR:     opts.L8SR,
		Meta:           opts.Meta,
	}
	if opts.S1Provider != "" {
		req.S1Provider = opts.S1Provider
	}
	if opts.L8Provider != "" {
		req.L8Provider = opts.L8Provider
	}
	if req.ProcessingStart, err = parseDate("processing-start", opts.ProcessingStart, time.Time{}); err != nil {
		return workplan.Request{}, err
	}
	if req.ProcessingEnd, err = parseDate("processing-end", opts.ProcessingEnd, time.Time{}); err != nil {
		return workplan.Request{}, err
	}
	return req, nil
}

func parseDate(flag, s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse(workplan.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s must be YYYY-MM-DD", workplan.ErrInvalidConfig, flag)
	}
	return t, nil
}

func runGenerate(c *cli.Context) error {
	opts, err := optionsFrom(c)
	if err != nil {
		return err
	}

	a, ctx, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := a.Logger()
	cfg := a.Config()

	policy, err := a.Policy(c.String("policy"))
	if err != nil {
		return err
	}
	overrides, err := a.OrbitOverrides(c.String("orbit-file"))
	if err != nil {
		return err
	}
	req, err := buildRequest(opts, policy, overrides, cfg.Plan.S1Provider, cfg.Plan.L8Provider)
	if err != nil {
		return err
	}

	assembler, err := a.Assembler(c.String("grid"))
	if err != nil {
		return err
	}

	started := time.Now()
	wp, err := assembler.Build(ctx, req)
	a.Metrics().PlanBuilt(err)
	if err != nil {
		return fmt.Errorf("failed to build work plan: %w", err)
	}
	logger.Info("work plan built",
		slog.String("plan_id", wp.ID),
		slog.Int("tiles", len(wp.Tiles)),
		slog.Duration("elapsed", time.Since(started)),
	)

	out := c.String("out")
	if err := writePlan(ctx, a.Objects(), wp, out, c.App.Writer); err != nil {
		return fmt.Errorf("failed to write work plan: %w", err)
	}

	location := ""
	if out != "-" {
		location = out
	}

	if c.Bool("push-db") {
		st, err := a.Store(ctx)
		if err != nil {
			return err
		}
		if err := st.Push(ctx, wp); err != nil {
			return err
		}
	}

	if c.Bool("publish") {
		pub, err := a.Publisher()
		if err != nil {
			return err
		}
		err = pub.PublishPlanCreated(ctx, wp, location)
		a.Metrics().EventPublished(event.TypePlanCreated, err)
		if err != nil {
			return err
		}
	}
	return nil
}
