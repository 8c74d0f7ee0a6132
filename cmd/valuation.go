package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/valuation"
)

var valuationCmd = &cobra.Command{
	Use:   "valuation",
	Short: "Summarise the commercial valuation dataset by category",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("valuation"); err != nil {
			return err
		}

		paths, err := resolveDatasets(ctx, cfg, "valuation")
		if err != nil {
			return err
		}

		res, err := valuation.AnalyzeFile(ctx, paths["valuation"], valuation.Options{
			CategoryColumn:    cfg.Valuation.CategoryColumn,
			AreaColumn:        cfg.Valuation.AreaColumn,
			ValueColumn:       cfg.Valuation.ValueColumn,
			ExcludeCategories: cfg.Valuation.ExcludeCategories,
		})
		if err != nil {
			return err
		}

		zap.L().Info("valuation summary complete",
			zap.String("command", "valuation"),
			zap.Int("used", res.Used),
			zap.Int("rejected", len(res.Rejected)),
			zap.Int("categories", len(res.Categories)),
		)
		return res.WriteTable(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(valuationCmd)
}
