// Package store persists opportunities, company profiles, capability
// clusters, and pursuit pipeline state.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/govscout/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// SemanticScore is a cached LLM relevance judgment for one opportunity
// against one capability cluster. Caching keys on the pair so a rescore
// of the same notice against a different cluster never collides.
type SemanticScore struct {
	NoticeID  string    `json:"notice_id"`
	ClusterID string    `json:"cluster_id"`
	Score     float64   `json:"score"`
	Analysis  string    `json:"analysis,omitempty"`
	ScoredAt  time.Time `json:"scored_at"`
}

// ListPursuitsFilter narrows a pursuit listing.
type ListPursuitsFilter struct {
	Status model.PursuitStatus
}

// Store is the persistence boundary for the discovery pipeline.
type Store interface {
	Migrate(ctx context.Context) error

	// Opportunities. Upsert keys on notice_id and preserves the
	// first-seen timestamp across repeat ingestion.
	UpsertOpportunities(ctx context.Context, opps []model.Opportunity) (int64, error)
	GetOpportunity(ctx context.Context, noticeID string) (*model.Opportunity, error)
	ListOpportunities(ctx context.Context, filters model.SearchFilters) ([]model.Opportunity, error)
	DeleteOpportunity(ctx context.Context, noticeID string) error

	// Company profile. The profile is a singleton.
	SaveProfile(ctx context.Context, profile *model.CompanyProfile) error
	GetProfile(ctx context.Context) (*model.CompanyProfile, error)

	// Capability clusters.
	UpsertCluster(ctx context.Context, cluster *model.CapabilityCluster) error
	GetCluster(ctx context.Context, id string) (*model.CapabilityCluster, error)
	ListClusters(ctx context.Context) ([]model.CapabilityCluster, error)
	DeleteCluster(ctx context.Context, id string) error

	// Pursuit pipeline.
	CreatePursuit(ctx context.Context, pursuit *model.Pursuit) error
	GetPursuit(ctx context.Context, id string) (*model.Pursuit, error)
	ListPursuits(ctx context.Context, filter ListPursuitsFilter) ([]model.Pursuit, error)
	UpdatePursuit(ctx context.Context, pursuit *model.Pursuit) error
	DeletePursuit(ctx context.Context, id string) error

	// Semantic score cache.
	SaveSemanticScore(ctx context.Context, score *SemanticScore) error
	GetSemanticScore(ctx context.Context, noticeID, clusterID string) (*SemanticScore, error)

	// Spending trends cache. Get returns ErrNotFound when the entry is
	// missing or older than maxAge.
	SaveSpendingCache(ctx context.Context, key string, payload []byte) error
	GetSpendingCache(ctx context.Context, key string, maxAge time.Duration) ([]byte, error)

	Close()
}
