package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/store"
)

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.GetProfile(r.Context())
	if err != nil {
		respondErr(w, storeStatus(err), "company profile is not configured")
		return
	}
	respond(w, http.StatusOK, profile)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var profile model.CompanyProfile
	if !decodeBody(w, r, &profile) {
		return
	}
	if profile.CompanyName == "" {
		respondErr(w, http.StatusBadRequest, "company_name is required")
		return
	}

	if err := s.store.SaveProfile(r.Context(), &profile); err != nil {
		s.log.Error("save profile failed", zap.Error(err))
		respondErr(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	respond(w, http.StatusOK, profile)
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.store.ListClusters(r.Context())
	if err != nil {
		respondErr(w, http.StatusInternalServerError, "failed to list clusters")
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"count":    len(clusters),
		"clusters": clusters,
	})
}

func validCluster(w http.ResponseWriter, cluster *model.CapabilityCluster) bool {
	if cluster.Name == "" {
		respondErr(w, http.StatusBadRequest, "name is required")
		return false
	}
	if len(cluster.NAICSCodes) == 0 {
		respondErr(w, http.StatusBadRequest, "at least one NAICS code is required")
		return false
	}
	return true
}

func (s *Server) handleCreateCluster(w http.ResponseWriter, r *http.Request) {
	var cluster model.CapabilityCluster
	if !decodeBody(w, r, &cluster) {
		return
	}
	cluster.ID = ""
	if !validCluster(w, &cluster) {
		return
	}

	if err := s.store.UpsertCluster(r.Context(), &cluster); err != nil {
		s.log.Error("create cluster failed", zap.Error(err))
		respondErr(w, http.StatusInternalServerError, "failed to create cluster")
		return
	}
	respond(w, http.StatusCreated, cluster)
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	cluster, err := s.store.GetCluster(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, storeStatus(err), "cluster not found")
		return
	}
	respond(w, http.StatusOK, cluster)
}

func (s *Server) handleUpdateCluster(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetCluster(r.Context(), id); err != nil {
		respondErr(w, storeStatus(err), "cluster not found")
		return
	}

	var cluster model.CapabilityCluster
	if !decodeBody(w, r, &cluster) {
		return
	}
	cluster.ID = id
	if !validCluster(w, &cluster) {
		return
	}

	if err := s.store.UpsertCluster(r.Context(), &cluster); err != nil {
		respondErr(w, http.StatusInternalServerError, "failed to update cluster")
		return
	}
	respond(w, http.StatusOK, cluster)
}

func (s *Server) handleDeleteCluster(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCluster(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, storeStatus(err), "cluster not found")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListPursuits(w http.ResponseWriter, r *http.Request) {
	var filter store.ListPursuitsFilter
	if v := r.URL.Query().Get("status"); v != "" {
		status := model.PursuitStatus(v)
		if !model.ValidPursuitStatus(status) {
			respondErr(w, http.StatusBadRequest, "unknown pursuit status")
			return
		}
		filter.Status = status
	}

	pursuits, err := s.store.ListPursuits(r.Context(), filter)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, "failed to list pursuits")
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"count":    len(pursuits),
		"pursuits": pursuits,
	})
}

func (s *Server) handleCreatePursuit(w http.ResponseWriter, r *http.Request) {
	var pursuit model.Pursuit
	if !decodeBody(w, r, &pursuit) {
		return
	}
	if pursuit.OpportunityID == "" {
		respondErr(w, http.StatusBadRequest, "opportunity_id is required")
		return
	}
	if pursuit.Status != "" && !model.ValidPursuitStatus(pursuit.Status) {
		respondErr(w, http.StatusBadRequest, "unknown pursuit status")
		return
	}
	pursuit.ID = ""

	// Backfill the title from the stored opportunity when the caller
	// only sends the notice id.
	if pursuit.OpportunityTitle == "" {
		if opp, err := s.store.GetOpportunity(r.Context(), pursuit.OpportunityID); err == nil {
			pursuit.OpportunityTitle = opp.Title
		}
	}

	if err := s.store.CreatePursuit(r.Context(), &pursuit); err != nil {
		s.log.Error("create pursuit failed", zap.Error(err))
		respondErr(w, http.StatusInternalServerError, "failed to create pursuit")
		return
	}
	respond(w, http.StatusCreated, pursuit)
}

func (s *Server) handleGetPursuit(w http.ResponseWriter, r *http.Request) {
	pursuit, err := s.store.GetPursuit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, storeStatus(err), "pursuit not found")
		return
	}
	respond(w, http.StatusOK, pursuit)
}

// pursuitPatch carries partial pursuit updates. Pointer fields
// distinguish "not sent" from "set to zero".
type pursuitPatch struct {
	Status       *model.PursuitStatus `json:"status"`
	Notes        *string              `json:"notes"`
	AssignedTeam *[]string            `json:"assigned_team"`
	ClusterID    *string              `json:"cluster_id"`
	ClusterName  *string              `json:"cluster_name"`
}

func (s *Server) handlePatchPursuit(w http.ResponseWriter, r *http.Request) {
	pursuit, err := s.store.GetPursuit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, storeStatus(err), "pursuit not found")
		return
	}

	var patch pursuitPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.Status != nil {
		if !model.ValidPursuitStatus(*patch.Status) {
			respondErr(w, http.StatusBadRequest, "unknown pursuit status")
			return
		}
		pursuit.Status = *patch.Status
	}
	if patch.Notes != nil {
		pursuit.Notes = *patch.Notes
	}
	if patch.AssignedTeam != nil {
		pursuit.AssignedTeam = *patch.AssignedTeam
	}
	if patch.ClusterID != nil {
		pursuit.ClusterID = *patch.ClusterID
	}
	if patch.ClusterName != nil {
		pursuit.ClusterName = *patch.ClusterName
	}

	if err := s.store.UpdatePursuit(r.Context(), pursuit); err != nil {
		respondErr(w, storeStatus(err), "failed to update pursuit")
		return
	}
	respond(w, http.StatusOK, pursuit)
}

func (s *Server) handleDeletePursuit(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePursuit(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, storeStatus(err), "pursuit not found")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}
