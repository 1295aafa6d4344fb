// Package backfill crawls historical SAM.gov postings month by month,
// newest first, checkpointing after every page so an interrupted crawl
// resumes where it stopped instead of starting over.
package backfill

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/resilience"
	"github.com/sells-group/govscout/internal/state"
	"github.com/sells-group/govscout/internal/store"
)

const (
	monthKeyFormat = "2006-01"
	dateFormat     = "01/02/2006"
)

// ErrRunInProgress is returned when a crawl is requested while another
// is still executing.
var ErrRunInProgress = eris.New("backfill: crawl already in progress")

// Pager fetches one page of opportunities. SAMClient.SearchPage
// satisfies it.
type Pager interface {
	SearchPage(ctx context.Context, filters model.SearchFilters) ([]model.Opportunity, error)
}

// Options tunes crawl pacing. Zero values take the defaults, which stay
// well inside SAM.gov's public rate limits.
type Options struct {
	PageSize       int
	RateLimitPause time.Duration // base pause after a 429, scaled by attempt
	MaxPageRetries int
	MonthPause     time.Duration // politeness pause between months
	PagePause      time.Duration // politeness pause between pages
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.RateLimitPause <= 0 {
		o.RateLimitPause = 10 * time.Second
	}
	if o.MaxPageRetries <= 0 {
		o.MaxPageRetries = 3
	}
	if o.MonthPause <= 0 {
		o.MonthPause = time.Second
	}
	if o.PagePause <= 0 {
		o.PagePause = 200 * time.Millisecond
	}
	return o
}

// Status is the crawl checkpoint plus live run info.
type Status struct {
	state.BackfillState
	Running  bool    `json:"running"`
	Progress float64 `json:"progress_pct"`
}

// Coordinator owns the historical crawl. One crawl at a time.
type Coordinator struct {
	source  Pager
	store   store.Store
	state   state.Store
	opts    Options
	log     *zap.Logger
	running atomic.Bool
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(source Pager, st store.Store, checkpoints state.Store, opts Options) *Coordinator {
	return &Coordinator{
		source: source,
		store:  st,
		state:  checkpoints,
		opts:   opts.withDefaults(),
		log:    zap.L().With(zap.String("component", "backfill")),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run crawls the requested number of calendar months, newest first.
// Completed months recorded in the checkpoint are skipped, and when a
// resume month is set, months newer than it are skipped too since a
// prior run already covered them.
func (c *Coordinator) Run(ctx context.Context, months int) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer c.running.Store(false)

	st, err := c.state.LoadBackfill(ctx)
	if err != nil {
		return eris.Wrap(err, "backfill: load checkpoint")
	}

	if months <= 0 {
		months = st.MonthsRequested
	}
	if months <= 0 {
		months = 12
	}

	now := c.now().UTC()
	st.Status = state.BackfillRunning
	st.MonthsRequested = months
	st.LastError = ""
	st.CompletedAt = nil
	if st.StartedAt == nil {
		st.StartedAt = &now
	}
	if err := c.state.SaveBackfill(ctx, st); err != nil {
		return eris.Wrap(err, "backfill: save checkpoint")
	}

	if err := c.crawl(ctx, st, months, now); err != nil {
		st.Status = state.BackfillError
		st.LastError = err.Error()
		if saveErr := c.state.SaveBackfill(context.WithoutCancel(ctx), st); saveErr != nil {
			c.log.Error("failed to persist error state", zap.Error(saveErr))
		}
		return err
	}

	done := c.now().UTC()
	st.Status = state.BackfillCompleted
	st.CompletedAt = &done
	st.CurrentMonth = ""
	st.ResumeMonth = ""
	if err := c.state.SaveBackfill(ctx, st); err != nil {
		return eris.Wrap(err, "backfill: save checkpoint")
	}
	c.log.Info("backfill complete",
		zap.Int("months", months),
		zap.Int("upserted", st.TotalUpserted),
		zap.Int("pages", st.TotalPagesFetched))
	return nil
}

func (c *Coordinator) crawl(ctx context.Context, st *state.BackfillState, months int, now time.Time) error {
	for i := 0; i < months; i++ {
		start, end := monthWindow(now, i)
		key := start.Format(monthKeyFormat)

		if st.IsMonthDone(key) {
			continue
		}
		if st.ResumeMonth != "" && key > st.ResumeMonth {
			continue
		}

		// Checkpoint before fetching so a crash mid-month resumes here.
		st.CurrentMonth = key
		st.ResumeMonth = key
		if err := c.state.SaveBackfill(ctx, st); err != nil {
			return eris.Wrap(err, "backfill: save checkpoint")
		}

		c.log.Info("crawling month",
			zap.String("month", key),
			zap.String("from", start.Format(dateFormat)),
			zap.String("to", end.Format(dateFormat)))

		if err := c.crawlMonth(ctx, st, start, end); err != nil {
			return err
		}

		st.MarkMonthDone(key)
		st.CurrentMonth = ""
		if err := c.state.SaveBackfill(ctx, st); err != nil {
			return eris.Wrap(err, "backfill: save checkpoint")
		}

		if i < months-1 {
			if err := c.sleep(ctx, c.opts.MonthPause); err != nil {
				return err
			}
		}
	}
	return nil
}

// monthWindow returns the calendar month i steps back from now, clamped
// so the newest window never extends past now.
func monthWindow(now time.Time, i int) (time.Time, time.Time) {
	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	shifted := anchor.AddDate(0, 0, -i*30)
	start := time.Date(shifted.Year(), shifted.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	if end.After(now) {
		end = now
	}
	return start, end
}

func (c *Coordinator) crawlMonth(ctx context.Context, st *state.BackfillState, start, end time.Time) error {
	offset := 0
	for {
		opps, err := c.fetchPage(ctx, st, model.SearchFilters{
			PostedFrom: start.Format(dateFormat),
			PostedTo:   end.Format(dateFormat),
			Limit:      c.opts.PageSize,
			Offset:     offset,
		})
		if err != nil {
			return err
		}

		if len(opps) == 0 {
			return nil
		}

		// A store failure loses the page but never stops the crawl.
		if _, err := c.store.UpsertOpportunities(ctx, opps); err != nil {
			c.log.Error("failed to persist page",
				zap.Int("offset", offset), zap.Error(err))
		} else {
			st.TotalUpserted += len(opps)
		}
		st.TotalPagesFetched++
		if err := c.state.SaveBackfill(ctx, st); err != nil {
			return eris.Wrap(err, "backfill: save checkpoint")
		}

		// A short page means the month is exhausted.
		if len(opps) < c.opts.PageSize {
			return nil
		}
		offset += c.opts.PageSize
		if err := c.sleep(ctx, c.opts.PagePause); err != nil {
			return err
		}
	}
}

// fetchPage fetches one page, backing off and retrying on rate limits.
// A page that keeps failing is abandoned (returned empty) rather than
// killing the crawl; only context cancellation and checkpoint failures
// propagate.
func (c *Coordinator) fetchPage(ctx context.Context, st *state.BackfillState, filters model.SearchFilters) ([]model.Opportunity, error) {
	for attempt := 0; ; attempt++ {
		opps, err := c.source.SearchPage(ctx, filters)
		if err == nil {
			return opps, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if resilience.IsRateLimited(err) && attempt < c.opts.MaxPageRetries {
			pause := c.opts.RateLimitPause * time.Duration(attempt+1)
			c.log.Warn("rate limited, pausing crawl",
				zap.Int("offset", filters.Offset),
				zap.Duration("pause", pause),
				zap.Int("attempt", attempt+1))

			st.Status = state.BackfillPaused
			if err := c.state.SaveBackfill(ctx, st); err != nil {
				return nil, eris.Wrap(err, "backfill: save checkpoint")
			}
			if err := c.sleep(ctx, pause); err != nil {
				return nil, err
			}
			st.Status = state.BackfillRunning
			if err := c.state.SaveBackfill(ctx, st); err != nil {
				return nil, eris.Wrap(err, "backfill: save checkpoint")
			}
			continue
		}

		c.log.Warn("abandoning page",
			zap.Int("offset", filters.Offset), zap.Error(err))
		return nil, nil
	}
}

// Status reports crawl progress from the checkpoint.
func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	st, err := c.state.LoadBackfill(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "backfill: load checkpoint")
	}
	return &Status{
		BackfillState: *st,
		Running:       c.running.Load(),
		Progress:      st.ProgressPct(),
	}, nil
}
