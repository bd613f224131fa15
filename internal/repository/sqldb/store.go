package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/prefracta-audit/internal/domain"
)

// Store: хранилище сессий аудита поверх database/sql (pgx или sqlite).
// Реализует SessionStore и LatestIndex оркестратора и Storage журнала событий.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	now     func() time.Time
}

func NewStore(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger.Named("sqldb"),
		now:     time.Now,
	}
}

// Ping проверяет доступность базы (health-check)
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) q(query string) string {
	return Rebind(s.dialect, query)
}

// Create сохраняет снимок сессии вместе с начальной историей в одной транзакции.
func (s *Store) Create(ctx context.Context, session *domain.AuditSession) error {
	metrics, err := nullableJSON(session.Metrics)
	if err != nil {
		return fmt.Errorf("sqldb: encode metrics: %w", err)
	}
	browser, err := nullableJSON(session.Browser)
	if err != nil {
		return fmt.Errorf("sqldb: encode browser metrics: %w", err)
	}
	repo, err := nullableJSON(session.Repo)
	if err != nil {
		return fmt.Errorf("sqldb: encode repository scan: %w", err)
	}
	insights, err := json.Marshal(session.Insights)
	if err != nil {
		return fmt.Errorf("sqldb: encode insights: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO sessions (id, caller_id, url, target_url, repository_url, metrics, browser, repo, insights, verdict, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, s.q(query),
		session.ID, session.CallerID, session.URL, session.TargetURL, session.RepositoryURL,
		metrics, browser, repo, string(insights), session.Verdict, formatTime(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqldb: insert session: %w", err)
	}

	if err := s.insertTurns(ctx, tx, session.ID, 0, session.History); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: commit session: %w", err)
	}
	return nil
}

// Get возвращает снимок с историей по порядку; неизвестный id, ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, id string) (*domain.AuditSession, error) {
	query := `SELECT id, caller_id, url, target_url, repository_url, metrics, browser, repo, insights, verdict, created_at
	          FROM sessions WHERE id = ?`

	var (
		session                domain.AuditSession
		metrics, browser, repo sql.NullString
		insights, createdAt    string
	)
	err := s.db.QueryRowContext(ctx, s.q(query), id).Scan(
		&session.ID, &session.CallerID, &session.URL, &session.TargetURL, &session.RepositoryURL,
		&metrics, &browser, &repo, &insights, &session.Verdict, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("sqldb: get session: %w", err)
	}

	if session.Metrics, err = decodeNullable[domain.LoadTestResult](metrics); err != nil {
		return nil, fmt.Errorf("sqldb: decode metrics: %w", err)
	}
	if session.Browser, err = decodeNullable[domain.BrowserAuditResult](browser); err != nil {
		return nil, fmt.Errorf("sqldb: decode browser metrics: %w", err)
	}
	if session.Repo, err = decodeNullable[domain.RepoScanResult](repo); err != nil {
		return nil, fmt.Errorf("sqldb: decode repository scan: %w", err)
	}
	if err := json.Unmarshal([]byte(insights), &session.Insights); err != nil {
		return nil, fmt.Errorf("sqldb: decode insights: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("sqldb: decode created_at: %w", err)
	}

	if session.History, err = s.turns(ctx, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// AppendTurns дописывает реплики в конец истории. Порядок задает seq.
func (s *Store) AppendTurns(ctx context.Context, id string, turns ...domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM sessions WHERE id = ?`), id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqldb: check session: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}

	var last int
	err = tx.QueryRowContext(ctx, s.q(`SELECT COALESCE(MAX(seq), 0) FROM chat_turns WHERE session_id = ?`), id).Scan(&last)
	if err != nil {
		return fmt.Errorf("sqldb: read history tail: %w", err)
	}

	if err := s.insertTurns(ctx, tx, id, last, turns); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: commit turns: %w", err)
	}
	return nil
}

func (s *Store) insertTurns(ctx context.Context, tx *sql.Tx, sessionID string, after int, turns []domain.Turn) error {
	query := s.q(`INSERT INTO chat_turns (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	for i, t := range turns {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		if _, err := tx.ExecContext(ctx, query, sessionID, after+i+1, string(t.Role), t.Content, formatTime(ts)); err != nil {
			return fmt.Errorf("sqldb: insert turn: %w", err)
		}
	}
	return nil
}

func (s *Store) turns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT role, content, created_at FROM chat_turns WHERE session_id = ? ORDER BY seq`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: query history: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	history := make([]domain.Turn, 0)
	for rows.Next() {
		var (
			t     domain.Turn
			role  string
			stamp string
		)
		if err := rows.Scan(&role, &t.Content, &stamp); err != nil {
			return nil, fmt.Errorf("sqldb: scan turn: %w", err)
		}
		t.Role = domain.Role(role)
		if t.Timestamp, err = parseTime(stamp); err != nil {
			return nil, fmt.Errorf("sqldb: decode turn time: %w", err)
		}
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterate history: %w", err)
	}
	return history, nil
}

// SetLatest: указатель последней сессии для развертываний без Redis.
func (s *Store) SetLatest(ctx context.Context, callerID, sessionID string) error {
	query := `INSERT INTO latest_sessions (caller_id, session_id, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT (caller_id) DO UPDATE SET session_id = excluded.session_id, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, s.q(query), callerID, sessionID, formatTime(s.now())); err != nil {
		return fmt.Errorf("sqldb: set latest session: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, callerID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT session_id FROM latest_sessions WHERE caller_id = ?`), callerID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no session for caller %s: %w", callerID, domain.ErrSessionNotFound)
		}
		return "", fmt.Errorf("sqldb: get latest session: %w", err)
	}
	return id, nil
}

// nullableJSON: nil-указатель (зонд не дал результата) хранится как NULL.
func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeNullable[T any](raw sql.NullString) (*T, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw.String), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Время пишем строкой фиксированной ширины: ее понимают TIMESTAMPTZ и TEXT-колонка sqlite,
// а в sqlite она еще и сортируется лексикографически.
// TIMESTAMPTZ при чтении в string database/sql отдает в RFC3339Nano.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
