// cmd/watch.go
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/jen-cli/internal/observability"
	"github.com/xkilldash9x/jen-cli/internal/site"
	"github.com/xkilldash9x/jen-cli/internal/watch"
)

// newWatchCmd creates the `jen watch` command: build once, then rebuild
// incrementally on file changes until interrupted.
func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch [entries...]",
		Short: "Builds the site and rebuilds incrementally on changes",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("watch.debounce", cmd.Flags().Lookup("debounce")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if len(args) > 0 {
				cfg.Site.Entries = args
			}
			if len(cfg.Site.Entries) == 0 {
				return fmt.Errorf("no entry pages: pass them as arguments or set site.entries")
			}
			if d := viper.GetDuration("watch.debounce"); d > 0 {
				cfg.Watch.Debounce = d
			}

			builder, err := site.NewBuilder(cfg, nil, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize builder: %w", err)
			}

			// Initial full build. Failures are logged, not fatal: the broken
			// tasks stay pending and the first file change retries them.
			if err := builder.Build(ctx); err != nil {
				logger.Error("Initial build failed; watching for fixes", zap.Error(err))
			}

			root, err := filepath.Abs(cfg.Site.Root)
			if err != nil {
				return err
			}
			w := watch.New(root, cfg.Watch.Debounce, builder.Runner(), builder.Build, logger)
			return w.Run(ctx)
		},
	}

	watchCmd.Flags().Duration("debounce", 0, "How long to coalesce file events before rebuilding. (Overrides config/env)")

	return watchCmd
}

func init() {
	rootCmd.AddCommand(newWatchCmd())
}
