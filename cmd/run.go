package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/config"
	"github.com/sells-group/settlement-cli/internal/export"
	"github.com/sells-group/settlement-cli/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute the children-per-place ratio for every settlement",
	Long: `Loads the school, settlement and census datasets (downloading any that are
configured by URL only), joins schools to settlements and writes the ratio table.
The census table is optional when the settlement file already carries the age
columns.

Settlements with no school places or no school-age children are left out of the
table and listed in the report.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "run"))

		names := []string{"schools", "settlements"}
		if cfg.Census.Path != "" || cfg.Census.URL != "" {
			names = append(names, "census")
		}
		paths, err := resolveDatasets(ctx, cfg, names...)
		if err != nil {
			return err
		}

		opts, err := pipeline.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		out, err := pipeline.New(opts).Run(ctx, pipeline.Inputs{
			Schools:     paths["schools"],
			Settlements: paths["settlements"],
			Census:      paths["census"],
		})
		if err != nil {
			return err
		}

		if err := export.Write(ctx, export.Options{
			Format:      cfg.Output.Format,
			Path:        cfg.Output.Path,
			Table:       cfg.Output.Table,
			DatabaseURL: cfg.Output.DatabaseURL,
		}, out); err != nil {
			return eris.Wrap(err, "run: write output")
		}
		if cfg.Output.ReportPath != "" {
			if err := export.WriteReport(cfg.Output.ReportPath, out.Report); err != nil {
				return eris.Wrap(err, "run: write report")
			}
		}

		log.Info("run complete",
			zap.Int("rows", out.Report.Rows),
			zap.Int("outliers", out.Report.Outliers),
			zap.Int("excluded", out.Report.Excluded()),
			zap.Int("rejected", out.Report.Rejected()),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "%d settlements analysed, %d above %g children per place\n",
			out.Report.Rows, out.Report.Outliers, out.Report.Threshold)
		return nil
	},
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		v, err := flags.GetFloat64("threshold")
		if err != nil {
			return eris.Wrap(err, "run: --threshold")
		}
		c.Analysis.Threshold = v
	}
	if flags.Changed("output") {
		c.Output.Path, _ = flags.GetString("output")
	}
	if flags.Changed("format") {
		c.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("report") {
		c.Output.ReportPath, _ = flags.GetString("report")
	}
	if flags.Changed("boundary") {
		c.Analysis.BoundaryPolicy, _ = flags.GetString("boundary")
	}
	if flags.Changed("refresh") {
		c.Fetch.Refresh, _ = flags.GetBool("refresh")
	}
	return nil
}

func init() {
	runCmd.Flags().Float64("threshold", 1.6, "ratio above which a settlement is flagged")
	runCmd.Flags().String("output", "", "output path (csv, geojson, xlsx, sqlite)")
	runCmd.Flags().String("format", "", "output format: csv, geojson, xlsx, sqlite or postgres")
	runCmd.Flags().String("report", "", "write the data-quality report as YAML to this path")
	runCmd.Flags().String("boundary", "", "schools on a settlement boundary: exclude or include")
	runCmd.Flags().Bool("refresh", false, "revalidate cached downloads")
	rootCmd.AddCommand(runCmd)
}
