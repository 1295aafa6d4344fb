package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/govscout/internal/matcher"
	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/store"
)

var (
	searchQuery    string
	searchNAICS    []string
	searchSetAside string
	searchDept     string
	searchLimit    int
	searchMinScore float64
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search stored opportunities and score them against capability clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		filters := model.SearchFilters{
			Keywords:   searchQuery,
			NAICSCodes: searchNAICS,
			SetAside:   searchSetAside,
			Department: searchDept,
			Limit:      searchLimit,
		}
		opps, err := st.ListOpportunities(ctx, filters)
		if err != nil {
			return err
		}

		scored, err := scoreAgainstClusters(ctx, st, opps)
		if err != nil {
			return err
		}
		if searchMinScore > 0 {
			kept := scored[:0]
			for _, so := range scored {
				if so.MatchScore.Overall >= searchMinScore {
					kept = append(kept, so)
				}
			}
			scored = kept
		}

		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(scored)
		}

		cmd.Printf("%-18s %6s  %-8s %-25s %s\n", "NOTICE", "SCORE", "TIER", "CLUSTER", "TITLE")
		for _, so := range scored {
			cmd.Printf("%-18s %6.1f  %-8s %-25s %s\n",
				so.Opportunity.NoticeID,
				so.MatchScore.Overall,
				so.MatchTier,
				so.BestClusterName,
				so.Opportunity.Title)
		}
		return nil
	},
}

// scoreAgainstClusters scores opportunities with the configured matcher
// thresholds, sharing agency and geo preferences from the profile.
func scoreAgainstClusters(ctx context.Context, st store.Store, opps []model.Opportunity) ([]model.ScoredOpportunity, error) {
	clusters, err := st.ListClusters(ctx)
	if err != nil {
		return nil, err
	}

	var agencyPrefs, geoPrefs []string
	profile, err := st.GetProfile(ctx)
	switch {
	case err == nil:
		agencyPrefs = profile.AgencyPreferences
		geoPrefs = profile.GeographicPreferences
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	engine := matcher.New(matcher.Config{
		HighThreshold:   cfg.Matcher.HighThreshold,
		MediumThreshold: cfg.Matcher.MediumThreshold,
	})
	return engine.ScoreAllWithClusters(opps, clusters, agencyPrefs, geoPrefs), nil
}

func init() {
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "keyword filter on title and description")
	searchCmd.Flags().StringSliceVar(&searchNAICS, "naics", nil, "NAICS code filter")
	searchCmd.Flags().StringVar(&searchSetAside, "set-aside", "", "set-aside filter")
	searchCmd.Flags().StringVar(&searchDept, "department", "", "department filter")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "max results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "drop results below this overall score")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}
