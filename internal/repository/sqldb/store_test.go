package sqldb

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/audit"
	"github.com/xela07ax/prefracta-audit/internal/domain"
	"github.com/xela07ax/prefracta-audit/internal/infra"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	db, err := infra.OpenDatabase(ctx, infra.DatabaseConfig{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "prefracta.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewStore(db, SQLite, zap.NewNop())
	require.NoError(t, s.Migrate(ctx))
	return s
}

func sampleSession(id string, at time.Time) *domain.AuditSession {
	load := 1300
	return &domain.AuditSession{
		ID:            id,
		CallerID:      "u-1",
		URL:           "https://shop.example.com",
		TargetURL:     "https://shop.example.com",
		RepositoryURL: "https://github.com/acme/shop",
		Metrics: &domain.LoadTestResult{
			Latency:              domain.Latency{P50: 120, P95: 720.9, P99: 1400, Avg: 412.5},
			Throughput:           190.4,
			FailureRateUnderTest: 0.06,
			TotalRequests:        952,
		},
		Browser: &domain.BrowserAuditResult{Performance: 91, BestPractices: 78, LoadTimeMs: &load},
		Insights: domain.BusinessInsights{
			ConversionLoss:     2.9,
			AdSpendRisk:        1234,
			StabilityRiskScore: 61,
			ScoreBreakdown:     domain.ScoreBreakdown{Performance: 31, Architecture: 84, DevOps: 20},
			Remediations:       []string{"Edge caching → -505ms p95 latency"},
			CollapsePoint:      150,
		},
		Verdict:   "BLOCK",
		History:   []domain.Turn{{Role: domain.RoleAssistant, Content: "BLOCK", Timestamp: at}},
		CreatedAt: at,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 9, 30, 0, 123000000, time.UTC)

	in := sampleSession("s-1", at)
	require.NoError(t, s.Create(ctx, in))

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)

	assert.Equal(t, in.CallerID, got.CallerID)
	assert.Equal(t, in.URL, got.URL)
	assert.Equal(t, in.RepositoryURL, got.RepositoryURL)
	assert.Equal(t, in.Metrics, got.Metrics)
	assert.Equal(t, in.Browser, got.Browser)
	assert.Nil(t, got.Repo, "absent probe must stay absent")
	assert.Equal(t, in.Insights, got.Insights)
	assert.Nil(t, got.Insights.CICDRisk)
	assert.Equal(t, "BLOCK", got.Verdict)
	assert.True(t, at.Equal(got.CreatedAt))

	require.Len(t, got.History, 1)
	assert.Equal(t, domain.RoleAssistant, got.History[0].Role)
	assert.True(t, at.Equal(got.History[0].Timestamp))
	assert.Equal(t, domain.SessionCreated, got.State())
}

func TestStore_GetUnknown(t *testing.T) {
	s := newSQLiteStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStore_AppendTurns(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, sampleSession("s-1", at)))

	require.NoError(t, s.AppendTurns(ctx, "s-1",
		domain.Turn{Role: domain.RoleUser, Content: "Can we ship?", Timestamp: at.Add(time.Minute)},
		domain.Turn{Role: domain.RoleAssistant, Content: "BLOCK.", Timestamp: at.Add(2 * time.Minute)},
	))
	require.NoError(t, s.AppendTurns(ctx, "s-1",
		domain.Turn{Role: domain.RoleUser, Content: "And now?"},
		domain.Turn{Role: domain.RoleAssistant, Content: "APPROVE."},
	))
	require.NoError(t, s.AppendTurns(ctx, "s-1"))

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)

	contents := make([]string, 0, len(got.History))
	for _, turn := range got.History {
		contents = append(contents, turn.Content)
	}
	assert.Equal(t, []string{"BLOCK", "Can we ship?", "BLOCK.", "And now?", "APPROVE."}, contents)
	assert.Equal(t, domain.RoleUser, got.History[3].Role)
	assert.False(t, got.History[4].Timestamp.IsZero())
	assert.Equal(t, domain.SessionActive, got.State())

	t.Run("unknown session", func(t *testing.T) {
		err := s.AppendTurns(ctx, "missing", domain.Turn{Role: domain.RoleUser, Content: "hi"})
		require.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestStore_RepoSnapshotWithCICDRisk(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	in := sampleSession("s-2", time.Now().UTC())
	in.Metrics = nil
	in.Repo = &domain.RepoScanResult{
		Framework: "express",
		Docker:    domain.DockerSignals{Present: true},
		Issues:    []string{"No CI/CD pipeline detected"},
	}
	in.Repo.Summarize()
	in.Insights.CICDRisk = &domain.CICDRisk{Severity: "CRITICAL", Consequence: "Manual deploy = 3× higher outage risk"}
	require.NoError(t, s.Create(ctx, in))

	got, err := s.Get(ctx, "s-2")
	require.NoError(t, err)
	assert.Nil(t, got.Metrics)
	assert.Equal(t, in.Repo, got.Repo)
	require.NotNil(t, got.Insights.CICDRisk)
	assert.Equal(t, "CRITICAL", got.Insights.CICDRisk.Severity)
}

func TestStore_LatestIndex(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.Latest(ctx, "u-1")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, s.SetLatest(ctx, "u-1", "s-1"))
	require.NoError(t, s.SetLatest(ctx, "u-1", "s-2"))
	require.NoError(t, s.SetLatest(ctx, "u-2", "s-3"))

	id, err := s.Latest(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "s-2", id)

	id, err = s.Latest(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, "s-3", id)
}

func TestStore_WriteEvents(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.WriteEvents(ctx, nil))
	require.NoError(t, s.WriteEvents(ctx, []audit.ProbeEvent{
		{ID: "e1", SessionID: "s-1", Step: "load", Status: audit.StatusOK, DurationMs: 5200, Timestamp: at},
		{ID: "e2", SessionID: "s-1", Step: "browser", Status: audit.StatusAbsent, Error: "probe unavailable", Timestamp: at.Add(time.Second)},
		{ID: "e3", SessionID: "s-9", Step: "repo", Status: audit.StatusOK, Timestamp: at},
	}))

	events, err := s.EventsFor(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "load", events[0].Step)
	assert.Equal(t, int64(5200), events[0].DurationMs)
	assert.Equal(t, audit.StatusAbsent, events[1].Status)
	assert.Equal(t, "probe unavailable", events[1].Error)
	assert.True(t, at.Add(time.Second).Equal(events[1].Timestamp))
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", Rebind(Postgres, q))
	assert.Equal(t, q, Rebind(SQLite, q))
	assert.Equal(t, "SELECT 1", Rebind(Postgres, "SELECT 1"))
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, SQLite, DialectFor("sqlite"))
	assert.Equal(t, Postgres, DialectFor("postgres"))
	assert.Equal(t, Postgres, DialectFor(""))
}

func TestStore_PostgresErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("insert failure rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		s := NewStore(db, Postgres, zap.NewNop())
		err = s.Create(ctx, sampleSession("s-1", time.Now()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert session")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("placeholders are numbered", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT session_id FROM latest_sessions WHERE caller_id = $1")).
			WithArgs("u-1").
			WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("s-7"))

		s := NewStore(db, Postgres, zap.NewNop())
		id, err := s.Latest(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "s-7", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		s := NewStore(db, Postgres, zap.NewNop())
		_, err = s.Get(ctx, "nope")
		require.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
