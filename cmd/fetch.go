package main

import (
	"fmt"
	"os/signal"
	"slices"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/settlement-cli/internal/fetcher"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and cache the configured remote datasets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			cfg.Fetch.Refresh = true
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		var sources []fetcher.Source
		for _, d := range configuredDatasets(cfg) {
			if d.url != "" {
				sources = append(sources, d.source())
			}
		}
		if len(sources) == 0 {
			return eris.New("fetch: no dataset has a url configured")
		}

		log := zap.L().With(zap.String("command", "fetch"))
		log.Info("fetching datasets", zap.Int("sources", len(sources)), zap.Bool("refresh", cfg.Fetch.Refresh))

		paths, err := newCache(cfg).GetAll(ctx, sources)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		names := make([]string, 0, len(paths))
		for name := range paths {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, paths[name])
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().Bool("refresh", false, "revalidate cached copies")
	rootCmd.AddCommand(fetchCmd)
}
