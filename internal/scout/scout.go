// Package scout runs the incremental discovery loop: fetch the window
// since the last run from every source, score against the capability
// clusters, and surface only opportunities not seen before.
package scout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/matcher"
	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/source"
	"github.com/sells-group/govscout/internal/state"
	"github.com/sells-group/govscout/internal/store"
)

const windowDateFormat = "01/02/2006"

// ErrRunInProgress is returned when a run is requested while another is
// still executing.
var ErrRunInProgress = eris.New("scout: run already in progress")

// Options configures a Coordinator.
type Options struct {
	ScoreThreshold float64       // minimum overall score to surface as new
	FetchLimit     int           // per-source page limit
	Interval       time.Duration // cadence, used only for NextRunAt reporting
}

// RunResult is what one scout run produced.
type RunResult struct {
	NewOpportunities []model.ScoredOpportunity `json:"new_opportunities"`
	TotalFetched     int                       `json:"total_fetched"`
	TotalScored      int                       `json:"total_scored"`
	RunAt            time.Time                 `json:"run_at"`
	PostedFrom       string                    `json:"posted_from"`
	SourceErrors     map[string]string         `json:"source_errors,omitempty"`
}

// Status summarizes scout history for the API surface.
type Status struct {
	Running         bool              `json:"running"`
	LastRunAt       *time.Time        `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time        `json:"next_run_at,omitempty"`
	TotalRuns       int               `json:"total_runs"`
	TotalFetched    int               `json:"total_fetched"`
	TotalNew        int               `json:"total_new"`
	TotalTrackedIDs int               `json:"total_tracked_ids"`
	LastRun         *state.RunSummary `json:"last_run,omitempty"`
}

// Coordinator owns the scout loop. One run at a time; concurrent Run
// calls beyond the first get ErrRunInProgress.
type Coordinator struct {
	sources []source.Adapter
	store   store.Store
	state   state.Store
	engine  *matcher.Engine
	opts    Options
	log     *zap.Logger
	running atomic.Bool
	now     func() time.Time
}

func New(sources []source.Adapter, st store.Store, checkpoints state.Store, engine *matcher.Engine, opts Options) *Coordinator {
	if opts.ScoreThreshold == 0 {
		opts.ScoreThreshold = 40
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 100
	}
	if opts.Interval <= 0 {
		opts.Interval = 6 * time.Hour
	}
	return &Coordinator{
		sources: sources,
		store:   st,
		state:   checkpoints,
		engine:  engine,
		opts:    opts,
		log:     zap.L().With(zap.String("component", "scout")),
		now:     time.Now,
	}
}

// Run executes one scout cycle. The watermark advances even when every
// source fails or nothing new turns up, so the next window never
// re-covers ground already swept.
func (c *Coordinator) Run(ctx context.Context) (*RunResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer c.running.Store(false)

	st, err := c.state.LoadScout(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scout: load checkpoint")
	}

	runAt := c.now().UTC()
	from := runAt.Add(-24 * time.Hour)
	if st.LastRunAt != nil {
		from = *st.LastRunAt
	}

	filters := model.SearchFilters{
		PostedFrom: from.Format(windowDateFormat),
		PostedTo:   runAt.Format(windowDateFormat),
		Limit:      c.opts.FetchLimit,
	}
	c.log.Info("starting scout run",
		zap.String("posted_from", filters.PostedFrom),
		zap.String("posted_to", filters.PostedTo),
		zap.Int("sources", len(c.sources)))

	combined, sourceErrs := c.fetchAll(ctx, filters)

	// Persistence is best effort. A store failure must not kill the run;
	// scoring, novelty tracking, and the watermark still advance.
	if len(combined) > 0 {
		if _, err := c.store.UpsertOpportunities(ctx, combined); err != nil {
			c.log.Error("failed to persist fetched opportunities",
				zap.Int("count", len(combined)), zap.Error(err))
		}
	}

	scored, err := c.score(ctx, combined)
	if err != nil {
		return nil, err
	}

	seen := st.SeenSet()
	fresh := make([]model.ScoredOpportunity, 0, len(scored))
	allIDs := make([]string, 0, len(scored))
	for _, so := range scored {
		id := so.Opportunity.NoticeID
		allIDs = append(allIDs, id)
		if so.MatchScore.Overall < c.opts.ScoreThreshold {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		fresh = append(fresh, so)
	}

	// Every scored id counts as seen, not just the novel ones, so a
	// low scorer never resurfaces later as "new".
	st.MarkSeen(allIDs)
	st.RecordRun(runAt, len(combined), len(fresh))
	if err := c.state.SaveScout(ctx, st); err != nil {
		return nil, eris.Wrap(err, "scout: save checkpoint")
	}

	c.log.Info("scout run complete",
		zap.Int("fetched", len(combined)),
		zap.Int("scored", len(scored)),
		zap.Int("new", len(fresh)),
		zap.Int("source_errors", len(sourceErrs)))

	return &RunResult{
		NewOpportunities: fresh,
		TotalFetched:     len(combined),
		TotalScored:      len(scored),
		RunAt:            runAt,
		PostedFrom:       filters.PostedFrom,
		SourceErrors:     sourceErrs,
	}, nil
}

// fetchAll queries every source concurrently. A failed source is logged
// and reported but never cancels its siblings; its branch contributes an
// empty slice.
func (c *Coordinator) fetchAll(ctx context.Context, filters model.SearchFilters) ([]model.Opportunity, map[string]string) {
	results := make(chan source.Result, len(c.sources))
	var wg sync.WaitGroup
	for _, src := range c.sources {
		wg.Add(1)
		go func(src source.Adapter) {
			defer wg.Done()
			opps, err := src.Search(ctx, filters)
			results <- source.Result{Source: src.Name(), Opportunities: opps, Err: err}
		}(src)
	}
	wg.Wait()
	close(results)

	var combined []model.Opportunity
	sourceErrs := map[string]string{}
	byID := map[string]struct{}{}
	for r := range results {
		if r.Err != nil {
			c.log.Warn("source fetch failed",
				zap.String("source", r.Source), zap.Error(r.Err))
			sourceErrs[r.Source] = r.Err.Error()
			continue
		}
		for _, opp := range r.Opportunities {
			if _, ok := byID[opp.NoticeID]; ok {
				continue
			}
			byID[opp.NoticeID] = struct{}{}
			combined = append(combined, opp)
		}
	}
	if len(sourceErrs) == 0 {
		sourceErrs = nil
	}
	return combined, sourceErrs
}

func (c *Coordinator) score(ctx context.Context, opps []model.Opportunity) ([]model.ScoredOpportunity, error) {
	clusters, err := c.store.ListClusters(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scout: load clusters")
	}

	var agencyPrefs, geoPrefs []string
	profile, err := c.store.GetProfile(ctx)
	switch {
	case err == nil:
		agencyPrefs = profile.AgencyPreferences
		geoPrefs = profile.GeographicPreferences
	case errors.Is(err, store.ErrNotFound):
		// no profile yet; cluster NAICS and certifications still score
	default:
		return nil, eris.Wrap(err, "scout: load profile")
	}

	return c.engine.ScoreAllWithClusters(opps, clusters, agencyPrefs, geoPrefs), nil
}

// Status reports accumulated run history from the checkpoint.
func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	st, err := c.state.LoadScout(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scout: load checkpoint")
	}

	status := &Status{
		Running:         c.running.Load(),
		LastRunAt:       st.LastRunAt,
		TotalRuns:       len(st.Runs),
		TotalFetched:    st.TotalFetched,
		TotalNew:        st.TotalNew,
		TotalTrackedIDs: len(st.SeenNoticeIDs),
	}
	if st.LastRunAt != nil {
		next := st.LastRunAt.Add(c.opts.Interval)
		status.NextRunAt = &next
	}
	if n := len(st.Runs); n > 0 {
		last := st.Runs[n-1]
		status.LastRun = &last
	}
	return status, nil
}
