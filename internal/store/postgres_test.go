package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock, log: zap.NewNop()}, mock
}

func TestUpsertOpportunities(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_opportunities"}, opportunityColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "opportunities"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := s.UpsertOpportunities(context.Background(), []model.Opportunity{
		{NoticeID: "sam-001", Title: "Network Support", Source: "sam"},
		{NoticeID: "sam-002", Title: "Janitorial Services", Source: "sam"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertOpportunitiesEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	n, err := s.UpsertOpportunities(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func opportunityRow(noticeID, title string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"notice_id", "title", "solicitation_number", "department", "sub_tier",
		"office", "naics_code", "naics_description", "set_aside",
		"opportunity_type", "posted_date", "response_deadline", "description",
		"place_of_performance", "contact_email", "estimated_value",
		"award_amount", "link", "active", "source", "complexity_tier",
		"estimated_competition", "first_seen_at", "last_updated_at",
	}).AddRow(
		noticeID, title, "W91-25-R-0001", "DEPT OF DEFENSE", "AMC",
		"", "541511", "Custom Computer Programming Services", "Total Small Business",
		"Solicitation", "08/20/2026", "2026-09-15", "Build the thing.",
		"Huntsville, AL, USA", "ko@example.mil", (*float64)(nil),
		(*float64)(nil), "https://sam.gov/opp/"+noticeID+"/view", true, "sam",
		"STANDARD", "RESTRICTED", now, now,
	)
}

func TestGetOpportunity(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM opportunities\s+WHERE notice_id`).
		WithArgs("sam-001").
		WillReturnRows(opportunityRow("sam-001", "Network Support"))

	opp, err := s.GetOpportunity(context.Background(), "sam-001")
	require.NoError(t, err)
	assert.Equal(t, "Network Support", opp.Title)
	assert.Equal(t, "541511", opp.NAICSCode)
	assert.True(t, opp.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOpportunityNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM opportunities\s+WHERE notice_id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetOpportunity(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOpportunitiesFilters(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM opportunities\s+WHERE \(title ILIKE .+ AND naics_code = ANY.+ORDER BY first_seen_at DESC`).
		WithArgs("%robotics%", []string{"541511", "541512"}, 25).
		WillReturnRows(opportunityRow("sam-001", "Robotics Integration"))

	opps, err := s.ListOpportunities(context.Background(), model.SearchFilters{
		Keywords:   "robotics",
		NAICSCodes: []string{"541511", "541512"},
		Limit:      25,
	})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "sam-001", opps[0].NoticeID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOpportunityNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM opportunities`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteOpportunity(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndGetProfile(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO company_profile`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	profile := &model.CompanyProfile{
		CompanyName: "Acme Federal",
		NAICSCodes:  []string{"541511"},
	}
	require.NoError(t, s.SaveProfile(context.Background(), profile))
	assert.Equal(t, "default", profile.ID)
	assert.False(t, profile.CreatedAt.IsZero())

	data, err := json.Marshal(profile)
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT data FROM company_profile`).
		WithArgs("default").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Acme Federal", got.CompanyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePursuitNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE pursuits`).
		WithArgs("capture", pgxmock.AnyArg(), pgxmock.AnyArg(), "p-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdatePursuit(context.Background(), &model.Pursuit{
		ID:     "p-1",
		Status: model.PursuitCapture,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSemanticScoreRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO semantic_scores`).
		WithArgs("sam-001", "cl-1", 24.0, "Strong capability overlap.", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveSemanticScore(context.Background(), &SemanticScore{
		NoticeID:  "sam-001",
		ClusterID: "cl-1",
		Score:     24,
		Analysis:  "Strong capability overlap.",
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT score, analysis, scored_at FROM semantic_scores`).
		WithArgs("sam-001", "cl-1").
		WillReturnRows(pgxmock.NewRows([]string{"score", "analysis", "scored_at"}).
			AddRow(24.0, "Strong capability overlap.", time.Now()))

	got, err := s.GetSemanticScore(context.Background(), "sam-001", "cl-1")
	require.NoError(t, err)
	assert.Equal(t, 24.0, got.Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpendingCacheExpiry(t *testing.T) {
	s, mock := newMockStore(t)

	stale := time.Now().Add(-48 * time.Hour)
	mock.ExpectQuery(`SELECT payload, fetched_at FROM spending_cache`).
		WithArgs("spending:97:2026").
		WillReturnRows(pgxmock.NewRows([]string{"payload", "fetched_at"}).
			AddRow([]byte(`{}`), stale))

	_, err := s.GetSpendingCache(context.Background(), "spending:97:2026", 24*time.Hour)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
