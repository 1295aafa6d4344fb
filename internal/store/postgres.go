package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/db"
	"github.com/sells-group/govscout/internal/model"
)

// Schema statements are executed one at a time because pgx's extended
// query protocol rejects multi-statement strings.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS opportunities (
		notice_id             TEXT PRIMARY KEY,
		title                 TEXT NOT NULL DEFAULT '',
		solicitation_number   TEXT NOT NULL DEFAULT '',
		department            TEXT NOT NULL DEFAULT '',
		sub_tier              TEXT NOT NULL DEFAULT '',
		office                TEXT NOT NULL DEFAULT '',
		naics_code            TEXT NOT NULL DEFAULT '',
		naics_description     TEXT NOT NULL DEFAULT '',
		set_aside             TEXT NOT NULL DEFAULT '',
		opportunity_type      TEXT NOT NULL DEFAULT '',
		posted_date           TEXT NOT NULL DEFAULT '',
		response_deadline     TEXT NOT NULL DEFAULT '',
		description           TEXT NOT NULL DEFAULT '',
		place_of_performance  TEXT NOT NULL DEFAULT '',
		contact_email         TEXT NOT NULL DEFAULT '',
		estimated_value       DOUBLE PRECISION,
		award_amount          DOUBLE PRECISION,
		link                  TEXT NOT NULL DEFAULT '',
		active                BOOLEAN NOT NULL DEFAULT TRUE,
		source                TEXT NOT NULL DEFAULT '',
		complexity_tier       TEXT NOT NULL DEFAULT '',
		estimated_competition TEXT NOT NULL DEFAULT '',
		first_seen_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_opportunities_naics ON opportunities (naics_code)`,
	`CREATE INDEX IF NOT EXISTS idx_opportunities_source ON opportunities (source)`,
	`CREATE TABLE IF NOT EXISTS company_profile (
		id         TEXT PRIMARY KEY,
		data       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS capability_clusters (
		id         TEXT PRIMARY KEY,
		data       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS pursuits (
		id             TEXT PRIMARY KEY,
		opportunity_id TEXT NOT NULL,
		status         TEXT NOT NULL,
		data           JSONB NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS semantic_scores (
		notice_id  TEXT NOT NULL,
		cluster_id TEXT NOT NULL,
		score      DOUBLE PRECISION NOT NULL,
		analysis   TEXT NOT NULL DEFAULT '',
		scored_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (notice_id, cluster_id)
	)`,
	`CREATE TABLE IF NOT EXISTS spending_cache (
		cache_key  TEXT PRIMARY KEY,
		payload    JSONB NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// opportunityColumns excludes first_seen_at so the column default fills it
// on first insert and the conflict clause never touches it afterwards.
var opportunityColumns = []string{
	"notice_id", "title", "solicitation_number", "department", "sub_tier",
	"office", "naics_code", "naics_description", "set_aside",
	"opportunity_type", "posted_date", "response_deadline", "description",
	"place_of_performance", "contact_email", "estimated_value",
	"award_amount", "link", "active", "source", "complexity_tier",
	"estimated_competition", "last_updated_at",
}

const opportunitySelect = `SELECT notice_id, title, solicitation_number, department, sub_tier,
	office, naics_code, naics_description, set_aside, opportunity_type,
	posted_date, response_deadline, description, place_of_performance,
	contact_email, estimated_value, award_amount, link, active, source,
	complexity_tier, estimated_competition, first_seen_at, last_updated_at
	FROM opportunities`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	log     *zap.Logger
}

// NewPostgres connects to PostgreSQL and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse database url")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping database")
	}

	return &PostgresStore{
		pool:    pool,
		closeFn: pool.Close,
		log:     zap.L().With(zap.String("component", "store")),
	}, nil
}

// Migrate applies the schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "store: apply migration")
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// UpsertOpportunities bulk-upserts notices keyed on notice_id.
func (s *PostgresStore) UpsertOpportunities(ctx context.Context, opps []model.Opportunity) (int64, error) {
	if len(opps) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(opps))
	for _, o := range opps {
		updated := o.LastUpdatedAt
		if updated.IsZero() {
			updated = now
		}
		rows = append(rows, []any{
			o.NoticeID, o.Title, o.SolicitationNumber, o.Department, o.SubTier,
			o.Office, o.NAICSCode, o.NAICSDescription, o.SetAside,
			o.OpportunityType, o.PostedDate, o.ResponseDeadline, o.Description,
			o.PlaceOfPerformance, o.ContactEmail, o.EstimatedValue,
			o.AwardAmount, o.Link, o.Active, o.Source, string(o.ComplexityTier),
			string(o.EstimatedCompetition), updated,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "opportunities",
		Columns:      opportunityColumns,
		ConflictKeys: []string{"notice_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "store: upsert opportunities")
	}
	s.log.Debug("upserted opportunities",
		zap.Int("batch", len(opps)), zap.Int64("rows", n))
	return n, nil
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, noticeID string) (*model.Opportunity, error) {
	row := s.pool.QueryRow(ctx, opportunitySelect+" WHERE notice_id = $1", noticeID)
	opp, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get opportunity %s", noticeID)
	}
	return opp, nil
}

func (s *PostgresStore) ListOpportunities(ctx context.Context, filters model.SearchFilters) ([]model.Opportunity, error) {
	conds := []string{}
	args := []any{}

	if kw := strings.TrimSpace(filters.Keywords); kw != "" {
		args = append(args, "%"+kw+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if len(filters.NAICSCodes) > 0 {
		args = append(args, filters.NAICSCodes)
		conds = append(conds, fmt.Sprintf("naics_code = ANY($%d)", len(args)))
	}
	if filters.SetAside != "" {
		args = append(args, "%"+filters.SetAside+"%")
		conds = append(conds, fmt.Sprintf("set_aside ILIKE $%d", len(args)))
	}
	if filters.Department != "" {
		args = append(args, "%"+filters.Department+"%")
		conds = append(conds, fmt.Sprintf("department ILIKE $%d", len(args)))
	}
	if len(filters.OpportunityTypes) > 0 {
		args = append(args, filters.OpportunityTypes)
		conds = append(conds, fmt.Sprintf("opportunity_type = ANY($%d)", len(args)))
	}

	query := opportunitySelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY first_seen_at DESC, notice_id"

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list opportunities")
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan opportunity")
		}
		out = append(out, *opp)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate opportunities")
	}
	return out, nil
}

func (s *PostgresStore) DeleteOpportunity(ctx context.Context, noticeID string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM opportunities WHERE notice_id = $1", noticeID)
	if err != nil {
		return eris.Wrapf(err, "store: delete opportunity %s", noticeID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanOpportunity works for both pgx.Row and pgx.Rows.
func scanOpportunity(row pgx.Row) (*model.Opportunity, error) {
	var o model.Opportunity
	err := row.Scan(
		&o.NoticeID, &o.Title, &o.SolicitationNumber, &o.Department, &o.SubTier,
		&o.Office, &o.NAICSCode, &o.NAICSDescription, &o.SetAside,
		&o.OpportunityType, &o.PostedDate, &o.ResponseDeadline, &o.Description,
		&o.PlaceOfPerformance, &o.ContactEmail, &o.EstimatedValue,
		&o.AwardAmount, &o.Link, &o.Active, &o.Source, &o.ComplexityTier,
		&o.EstimatedCompetition, &o.FirstSeenAt, &o.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const profileID = "default"

func (s *PostgresStore) SaveProfile(ctx context.Context, profile *model.CompanyProfile) error {
	if profile.ID == "" {
		profile.ID = profileID
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "store: marshal profile")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO company_profile (id, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		profile.ID, data)
	if err != nil {
		return eris.Wrap(err, "store: save profile")
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context) (*model.CompanyProfile, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		"SELECT data FROM company_profile WHERE id = $1", profileID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get profile")
	}
	var profile model.CompanyProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, eris.Wrap(err, "store: decode profile")
	}
	return &profile, nil
}

func (s *PostgresStore) UpsertCluster(ctx context.Context, cluster *model.CapabilityCluster) error {
	if cluster.ID == "" {
		cluster.ID = uuid.NewString()
	}
	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(cluster)
	if err != nil {
		return eris.Wrap(err, "store: marshal cluster")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO capability_clusters (id, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		cluster.ID, data)
	if err != nil {
		return eris.Wrapf(err, "store: upsert cluster %s", cluster.ID)
	}
	return nil
}

func (s *PostgresStore) GetCluster(ctx context.Context, id string) (*model.CapabilityCluster, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		"SELECT data FROM capability_clusters WHERE id = $1", id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get cluster %s", id)
	}
	var cluster model.CapabilityCluster
	if err := json.Unmarshal(data, &cluster); err != nil {
		return nil, eris.Wrap(err, "store: decode cluster")
	}
	return &cluster, nil
}

func (s *PostgresStore) ListClusters(ctx context.Context) ([]model.CapabilityCluster, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT data FROM capability_clusters ORDER BY data->>'name', id")
	if err != nil {
		return nil, eris.Wrap(err, "store: list clusters")
	}
	defer rows.Close()

	var out []model.CapabilityCluster
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "store: scan cluster")
		}
		var cluster model.CapabilityCluster
		if err := json.Unmarshal(data, &cluster); err != nil {
			return nil, eris.Wrap(err, "store: decode cluster")
		}
		out = append(out, cluster)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate clusters")
	}
	return out, nil
}

func (s *PostgresStore) DeleteCluster(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM capability_clusters WHERE id = $1", id)
	if err != nil {
		return eris.Wrapf(err, "store: delete cluster %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreatePursuit(ctx context.Context, pursuit *model.Pursuit) error {
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
	data, err := json.Marshal(pursuit)
	if err != nil {
		return eris.Wrap(err, "store: marshal pursuit")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pursuits (id, opportunity_id, status, data, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		pursuit.ID, pursuit.OpportunityID, string(pursuit.Status), data, pursuit.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "store: create pursuit %s", pursuit.ID)
	}
	return nil
}

func (s *PostgresStore) GetPursuit(ctx context.Context, id string) (*model.Pursuit, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		"SELECT data FROM pursuits WHERE id = $1", id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get pursuit %s", id)
	}
	var pursuit model.Pursuit
	if err := json.Unmarshal(data, &pursuit); err != nil {
		return nil, eris.Wrap(err, "store: decode pursuit")
	}
	return &pursuit, nil
}

func (s *PostgresStore) ListPursuits(ctx context.Context, filter ListPursuitsFilter) ([]model.Pursuit, error) {
	query := "SELECT data FROM pursuits"
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += " WHERE status = $1"
	}
	query += " ORDER BY updated_at DESC, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list pursuits")
	}
	defer rows.Close()

	var out []model.Pursuit
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "store: scan pursuit")
		}
		var pursuit model.Pursuit
		if err := json.Unmarshal(data, &pursuit); err != nil {
			return nil, eris.Wrap(err, "store: decode pursuit")
		}
		out = append(out, pursuit)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate pursuits")
	}
	return out, nil
}

func (s *PostgresStore) UpdatePursuit(ctx context.Context, pursuit *model.Pursuit) error {
	pursuit.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(pursuit)
	if err != nil {
		return eris.Wrap(err, "store: marshal pursuit")
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE pursuits SET status = $1, data = $2, updated_at = $3 WHERE id = $4",
		string(pursuit.Status), data, pursuit.UpdatedAt, pursuit.ID)
	if err != nil {
		return eris.Wrapf(err, "store: update pursuit %s", pursuit.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePursuit(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM pursuits WHERE id = $1", id)
	if err != nil {
		return eris.Wrapf(err, "store: delete pursuit %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveSemanticScore(ctx context.Context, score *SemanticScore) error {
	if score.ScoredAt.IsZero() {
		score.ScoredAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO semantic_scores (notice_id, cluster_id, score, analysis, scored_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (notice_id, cluster_id) DO UPDATE SET
		 score = EXCLUDED.score, analysis = EXCLUDED.analysis, scored_at = EXCLUDED.scored_at`,
		score.NoticeID, score.ClusterID, score.Score, score.Analysis, score.ScoredAt)
	if err != nil {
		return eris.Wrapf(err, "store: save semantic score %s/%s", score.NoticeID, score.ClusterID)
	}
	return nil
}

func (s *PostgresStore) GetSemanticScore(ctx context.Context, noticeID, clusterID string) (*SemanticScore, error) {
	score := SemanticScore{NoticeID: noticeID, ClusterID: clusterID}
	err := s.pool.QueryRow(ctx,
		`SELECT score, analysis, scored_at FROM semantic_scores
		 WHERE notice_id = $1 AND cluster_id = $2`,
		noticeID, clusterID).Scan(&score.Score, &score.Analysis, &score.ScoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get semantic score %s/%s", noticeID, clusterID)
	}
	return &score, nil
}

func (s *PostgresStore) SaveSpendingCache(ctx context.Context, key string, payload []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO spending_cache (cache_key, payload, fetched_at) VALUES ($1, $2, now())
		 ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = now()`,
		key, payload)
	if err != nil {
		return eris.Wrapf(err, "store: save spending cache %s", key)
	}
	return nil
}

func (s *PostgresStore) GetSpendingCache(ctx context.Context, key string, maxAge time.Duration) ([]byte, error) {
	var payload []byte
	var fetchedAt time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT payload, fetched_at FROM spending_cache WHERE cache_key = $1",
		key).Scan(&payload, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get spending cache %s", key)
	}
	if maxAge > 0 && time.Since(fetchedAt) > maxAge {
		return nil, ErrNotFound
	}
	return payload, nil
}
