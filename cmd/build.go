// cmd/build.go
package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/jen-cli/internal/observability"
	"github.com/xkilldash9x/jen-cli/internal/site"
)

// newBuildCmd creates the one-shot `jen build` command.
func newBuildCmd() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build [entries...]",
		Short: "Builds the site once and exits",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so CLI values override config file and env.
			if err := viper.BindPFlag("site.root", cmd.Flags().Lookup("root")); err != nil {
				return err
			}
			if err := viper.BindPFlag("site.out", cmd.Flags().Lookup("out")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if root := viper.GetString("site.root"); root != "" {
				cfg.Site.Root = root
			}
			if out := viper.GetString("site.out"); out != "" {
				cfg.Site.Out = out
			}
			if len(args) > 0 {
				cfg.Site.Entries = args
			}
			if len(cfg.Site.Entries) == 0 {
				return fmt.Errorf("no entry pages: pass them as arguments or set site.entries")
			}

			builder, err := site.NewBuilder(cfg, nil, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize builder: %w", err)
			}

			if err := builder.Build(ctx); err != nil {
				logger.Error("Build failed", zap.Error(err))
				return err
			}

			stats := builder.Stats()
			if reportPath := viper.GetString("report"); reportPath != "" {
				if err := site.WriteReport(afero.NewOsFs(), reportPath, stats); err != nil {
					return err
				}
				logger.Info("Build report written", zap.String("path", reportPath))
			}

			fmt.Printf("Built %d page(s), %d asset(s) in %s\n", stats.Pages, stats.Assets, stats.Duration.Round(1e6))
			return nil
		},
	}

	buildCmd.Flags().String("root", "", "Site root directory. (Overrides config/env)")
	buildCmd.Flags().StringP("out", "o", "", "Output directory. (Overrides config/env)")
	buildCmd.Flags().String("report", "", "Write a JSON build report to this path.")

	return buildCmd
}

func init() {
	rootCmd.AddCommand(newBuildCmd())
}
