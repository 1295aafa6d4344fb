package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/govscout/internal/model"
)

// Interface checks.
var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// MemoryStore is an in-process Store used when no database URL is
// configured and in tests. Contents do not survive a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	opportunities map[string]model.Opportunity
	profile       *model.CompanyProfile
	clusters      map[string]model.CapabilityCluster
	pursuits      map[string]model.Pursuit
	semantic      map[string]SemanticScore
	spending      map[string]spendingEntry
}

type spendingEntry struct {
	payload   []byte
	fetchedAt time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		opportunities: make(map[string]model.Opportunity),
		clusters:      make(map[string]model.CapabilityCluster),
		pursuits:      make(map[string]model.Pursuit),
		semantic:      make(map[string]SemanticScore),
		spending:      make(map[string]spendingEntry),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close()                        {}

func (s *MemoryStore) UpsertOpportunities(_ context.Context, opps []model.Opportunity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, o := range opps {
		if existing, ok := s.opportunities[o.NoticeID]; ok {
			o.FirstSeenAt = existing.FirstSeenAt
		} else if o.FirstSeenAt.IsZero() {
			o.FirstSeenAt = now
		}
		if o.LastUpdatedAt.IsZero() {
			o.LastUpdatedAt = now
		}
		s.opportunities[o.NoticeID] = o
	}
	return int64(len(opps)), nil
}

func (s *MemoryStore) GetOpportunity(_ context.Context, noticeID string) (*model.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.opportunities[noticeID]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *MemoryStore) ListOpportunities(_ context.Context, filters model.SearchFilters) ([]model.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Opportunity
	for _, o := range s.opportunities {
		if matchesFilters(o, filters) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].FirstSeenAt.After(out[j].FirstSeenAt)
		}
		return out[i].NoticeID < out[j].NoticeID
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, nil
		}
		out = out[filters.Offset:]
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilters(o model.Opportunity, f model.SearchFilters) bool {
	if kw := strings.ToLower(strings.TrimSpace(f.Keywords)); kw != "" {
		if !strings.Contains(strings.ToLower(o.Title), kw) &&
			!strings.Contains(strings.ToLower(o.Description), kw) {
			return false
		}
	}
	if len(f.NAICSCodes) > 0 && !containsString(f.NAICSCodes, o.NAICSCode) {
		return false
	}
	if f.SetAside != "" && !strings.Contains(strings.ToLower(o.SetAside), strings.ToLower(f.SetAside)) {
		return false
	}
	if f.Department != "" && !strings.Contains(strings.ToLower(o.Department), strings.ToLower(f.Department)) {
		return false
	}
	if len(f.OpportunityTypes) > 0 && !containsString(f.OpportunityTypes, o.OpportunityType) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func (s *MemoryStore) DeleteOpportunity(_ context.Context, noticeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.opportunities[noticeID]; !ok {
		return ErrNotFound
	}
	delete(s.opportunities, noticeID)
	return nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, profile *model.CompanyProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.ID == "" {
		profile.ID = profileID
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	clone := *profile
	s.profile = &clone
	return nil
}

func (s *MemoryStore) GetProfile(context.Context) (*model.CompanyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.profile == nil {
		return nil, ErrNotFound
	}
	clone := *s.profile
	return &clone, nil
}

func (s *MemoryStore) UpsertCluster(_ context.Context, cluster *model.CapabilityCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cluster.ID == "" {
		cluster.ID = uuid.NewString()
	}
	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = time.Now().UTC()
	}
	s.clusters[cluster.ID] = *cluster
	return nil
}

func (s *MemoryStore) GetCluster(_ context.Context, id string) (*model.CapabilityCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clusters[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListClusters(context.Context) ([]model.CapabilityCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.CapabilityCluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) DeleteCluster(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clusters[id]; !ok {
		return ErrNotFound
	}
	delete(s.clusters, id)
	return nil
}

func (s *MemoryStore) CreatePursuit(_ context.Context, pursuit *model.Pursuit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pursuit.ID == "" {
		pursuit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if pursuit.CreatedAt.IsZero() {
		pursuit.CreatedAt = now
	}
	pursuit.UpdatedAt = now
	if pursuit.Status == "" {
		pursuit.Status = model.PursuitIdentified
	}
	s.pursuits[pursuit.ID] = *pursuit
	return nil
}

func (s *MemoryStore) GetPursuit(_ context.Context, id string) (*model.Pursuit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pursuits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListPursuits(_ context.Context, filter ListPursuitsFilter) ([]model.Pursuit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Pursuit
	for _, p := range s.pursuits {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdatePursuit(_ context.Context, pursuit *model.Pursuit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pursuits[pursuit.ID]; !ok {
		return ErrNotFound
	}
	pursuit.UpdatedAt = time.Now().UTC()
	s.pursuits[pursuit.ID] = *pursuit
	return nil
}

func (s *MemoryStore) DeletePursuit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pursuits[id]; !ok {
		return ErrNotFound
	}
	delete(s.pursuits, id)
	return nil
}

func semanticKey(noticeID, clusterID string) string {
	return noticeID + "\x00" + clusterID
}

func (s *MemoryStore) SaveSemanticScore(_ context.Context, score *SemanticScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score.ScoredAt.IsZero() {
		score.ScoredAt = time.Now().UTC()
	}
	s.semantic[semanticKey(score.NoticeID, score.ClusterID)] = *score
	return nil
}

func (s *MemoryStore) GetSemanticScore(_ context.Context, noticeID, clusterID string) (*SemanticScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.semantic[semanticKey(noticeID, clusterID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &sc, nil
}

func (s *MemoryStore) SaveSpendingCache(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spending[key] = spendingEntry{payload: payload, fetchedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryStore) GetSpendingCache(_ context.Context, key string, maxAge time.Duration) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.spending[key]
	if !ok {
		return nil, ErrNotFound
	}
	if maxAge > 0 && time.Since(entry.fetchedAt) > maxAge {
		return nil, ErrNotFound
	}
	return entry.payload, nil
}
