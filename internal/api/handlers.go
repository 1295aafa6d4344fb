package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/backfill"
	"github.com/sells-group/govscout/internal/digest"
	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/scout"
	"github.com/sells-group/govscout/internal/store"
)

func (s *Server) handleScoutRun(w http.ResponseWriter, r *http.Request) {
	if s.scout == nil {
		respondErr(w, http.StatusServiceUnavailable, "scout is not configured")
		return
	}

	result, err := s.scout.Run(r.Context())
	if err != nil {
		if errors.Is(err, scout.ErrRunInProgress) {
			respondErr(w, http.StatusConflict, "a scout run is already in progress")
			return
		}
		s.log.Error("scout run failed", zap.Error(err))
		respondErr(w, http.StatusInternalServerError, "scout run failed")
		return
	}
	respond(w, http.StatusOK, result)
}

func (s *Server) handleScoutStatus(w http.ResponseWriter, r *http.Request) {
	if s.scout == nil {
		respondErr(w, http.StatusServiceUnavailable, "scout is not configured")
		return
	}
	status, err := s.scout.Status(r.Context())
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, status)
}

func (s *Server) handleBackfillStart(w http.ResponseWriter, r *http.Request) {
	if s.backfill == nil {
		respondErr(w, http.StatusServiceUnavailable, "backfill is not configured")
		return
	}

	var req struct {
		Months int `json:"months"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Months < 0 || req.Months > 120 {
		respondErr(w, http.StatusBadRequest, "months must be between 0 and 120")
		return
	}

	status, err := s.backfill.Status(r.Context())
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if status.Running {
		respond(w, http.StatusConflict, status)
		return
	}

	// Detach from the request lifecycle; a crawl outlives the HTTP call.
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.backfill.Run(runCtx, req.Months); err != nil && !errors.Is(err, backfill.ErrRunInProgress) {
			s.log.Error("backfill failed", zap.Error(err))
		}
	}()

	respond(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"months": req.Months,
	})
}

func (s *Server) handleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	if s.backfill == nil {
		respondErr(w, http.StatusServiceUnavailable, "backfill is not configured")
		return
	}
	status, err := s.backfill.Status(r.Context())
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, status)
}

func searchFiltersFromQuery(r *http.Request) model.SearchFilters {
	q := r.URL.Query()
	filters := model.SearchFilters{
		Keywords:   q.Get("q"),
		SetAside:   q.Get("set_aside"),
		Department: q.Get("department"),
	}
	if v := q.Get("naics"); v != "" {
		filters.NAICSCodes = splitCSV(v)
	}
	if v := q.Get("type"); v != "" {
		filters.OpportunityTypes = splitCSV(v)
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filters.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filters.Offset = v
	}
	if v, err := strconv.ParseFloat(q.Get("min_score"), 64); err == nil && v > 0 {
		filters.MinScore = v
	}
	return filters
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := s.store.ListOpportunities(r.Context(), searchFiltersFromQuery(r))
	if err != nil {
		s.log.Error("list opportunities failed", zap.Error(err))
		respondErr(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"count":         len(opps),
		"opportunities": opps,
	})
}

func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	opp, err := s.store.GetOpportunity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, storeStatus(err), "opportunity not found")
		return
	}
	respond(w, http.StatusOK, opp)
}

func (s *Server) handleDeleteOpportunity(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteOpportunity(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, storeStatus(err), "opportunity not found")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// scoreStored scores stored opportunities against the configured clusters,
// sharing agency and geographic preferences from the profile when one
// exists.
func (s *Server) scoreStored(ctx context.Context, filters model.SearchFilters) ([]model.ScoredOpportunity, error) {
	minScore := filters.MinScore
	filters.MinScore = 0

	opps, err := s.store.ListOpportunities(ctx, filters)
	if err != nil {
		return nil, err
	}
	clusters, err := s.store.ListClusters(ctx)
	if err != nil {
		return nil, err
	}

	var agencyPrefs, geoPrefs []string
	profile, err := s.store.GetProfile(ctx)
	switch {
	case err == nil:
		agencyPrefs = profile.AgencyPreferences
		geoPrefs = profile.GeographicPreferences
	case errors.Is(err, store.ErrNotFound):
		profile = nil
	default:
		return nil, err
	}

	scored := s.engine.ScoreAllWithClusters(opps, clusters, agencyPrefs, geoPrefs)
	if s.scorer != nil {
		scored = s.scorer.Enrich(ctx, scored, clusters, profile)
	}
	if minScore > 0 {
		kept := scored[:0]
		for _, so := range scored {
			if so.MatchScore.Overall >= minScore {
				kept = append(kept, so)
			}
		}
		scored = kept
	}
	return scored, nil
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	scored, err := s.scoreStored(r.Context(), searchFiltersFromQuery(r))
	if err != nil {
		s.log.Error("match scoring failed", zap.Error(err))
		respondErr(w, http.StatusInternalServerError, "failed to score opportunities")
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"count":   len(scored),
		"matches": scored,
	})
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		respondErr(w, http.StatusServiceUnavailable, "generation is not configured")
		return
	}

	var req struct {
		ClusterID string `json:"cluster_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ClusterID == "" {
		respondErr(w, http.StatusBadRequest, "cluster_id is required")
		return
	}

	opp, err := s.store.GetOpportunity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, storeStatus(err), "opportunity not found")
		return
	}
	cluster, err := s.store.GetCluster(r.Context(), req.ClusterID)
	if err != nil {
		respondErr(w, storeStatus(err), "cluster not found")
		return
	}

	proposal, err := s.generator.Proposal(r.Context(), *opp, *cluster)
	if err != nil {
		s.log.Error("proposal generation failed", zap.Error(err))
		respondErr(w, http.StatusBadGateway, "proposal generation failed")
		return
	}
	respond(w, http.StatusOK, proposal)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		respondErr(w, http.StatusServiceUnavailable, "generation is not configured")
		return
	}

	opp, err := s.store.GetOpportunity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, storeStatus(err), "opportunity not found")
		return
	}
	profile, err := s.store.GetProfile(r.Context())
	if err != nil {
		respondErr(w, storeStatus(err), "company profile is not configured")
		return
	}

	analysis, err := s.generator.Analyze(r.Context(), *opp, *profile)
	if err != nil {
		s.log.Error("analysis failed", zap.Error(err))
		respondErr(w, http.StatusBadGateway, "analysis failed")
		return
	}
	respond(w, http.StatusOK, analysis)
}

func (s *Server) handleExportOpportunities(w http.ResponseWriter, r *http.Request) {
	scored, err := s.scoreStored(r.Context(), searchFiltersFromQuery(r))
	if err != nil {
		respondErr(w, http.StatusInternalServerError, "failed to score opportunities")
		return
	}

	switch r.URL.Query().Get("format") {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="opportunities.xlsx"`)
		if err := digest.WriteOpportunitiesXLSX(w, scored); err != nil {
			s.log.Error("xlsx export failed", zap.Error(err))
		}
	default:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="opportunities.csv"`)
		if err := digest.WriteOpportunitiesCSV(w, scored); err != nil {
			s.log.Error("csv export failed", zap.Error(err))
		}
	}
}

func (s *Server) handleExportPursuits(w http.ResponseWriter, r *http.Request) {
	pursuits, err := s.store.ListPursuits(r.Context(), store.ListPursuitsFilter{})
	if err != nil {
		respondErr(w, http.StatusInternalServerError, "failed to list pursuits")
		return
	}

	switch r.URL.Query().Get("format") {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="pursuits.xlsx"`)
		if err := digest.WritePursuitsXLSX(w, pursuits); err != nil {
			s.log.Error("xlsx export failed", zap.Error(err))
		}
	default:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="pursuits.csv"`)
		if err := digest.WritePursuitsCSV(w, pursuits); err != nil {
			s.log.Error("csv export failed", zap.Error(err))
		}
	}
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	if s.spending == nil {
		respondErr(w, http.StatusServiceUnavailable, "spending lookups are not configured")
		return
	}

	naics := chi.URLParam(r, "naics")
	if len(naics) < 2 || len(naics) > 6 {
		respondErr(w, http.StatusBadRequest, "naics code must be 2 to 6 digits")
		return
	}
	for _, c := range naics {
		if c < '0' || c > '9' {
			respondErr(w, http.StatusBadRequest, "naics code must be numeric")
			return
		}
	}

	trends, err := s.spending.GetSpending(r.Context(), naics)
	if err != nil {
		s.log.Error("spending lookup failed", zap.String("naics", naics), zap.Error(err))
		respondErr(w, http.StatusBadGateway, "spending lookup failed")
		return
	}
	respond(w, http.StatusOK, trends)
}
