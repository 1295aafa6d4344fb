package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/digest"
	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/store"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export [opportunities|pursuits]",
	Short: "Export scored opportunities or pursuits to CSV or XLSX",
	Long:  "The output format follows the file extension: .csv or .xlsx.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		what := args[0]
		if what != "opportunities" && what != "pursuits" {
			return eris.Errorf("unknown export target %q, want opportunities or pursuits", what)
		}

		ext := strings.ToLower(filepath.Ext(exportOut))
		if ext != ".csv" && ext != ".xlsx" {
			return eris.Errorf("output file %q must end in .csv or .xlsx", exportOut)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrapf(err, "create %s", exportOut)
		}
		defer f.Close() //nolint:errcheck

		switch what {
		case "opportunities":
			opps, err := st.ListOpportunities(ctx, model.SearchFilters{Limit: exportLimit})
			if err != nil {
				return err
			}
			scored, err := scoreAgainstClusters(ctx, st, opps)
			if err != nil {
				return err
			}
			if ext == ".xlsx" {
				err = digest.WriteOpportunitiesXLSX(f, scored)
			} else {
				err = digest.WriteOpportunitiesCSV(f, scored)
			}
			if err != nil {
				return err
			}
			zap.L().Info("export written", zap.String("file", exportOut), zap.Int("rows", len(scored)))
		case "pursuits":
			pursuits, err := st.ListPursuits(ctx, store.ListPursuitsFilter{})
			if err != nil {
				return err
			}
			if ext == ".xlsx" {
				err = digest.WritePursuitsXLSX(f, pursuits)
			} else {
				err = digest.WritePursuitsCSV(f, pursuits)
			}
			if err != nil {
				return err
			}
			zap.L().Info("export written", zap.String("file", exportOut), zap.Int("rows", len(pursuits)))
		}

		return f.Close()
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "opportunities.csv", "output file (.csv or .xlsx)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 500, "max opportunities to export")
	rootCmd.AddCommand(exportCmd)
}
