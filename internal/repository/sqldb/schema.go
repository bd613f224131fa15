package sqldb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Dialect: диалект SQL, под который переписываются плейсхолдеры и DDL.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DialectFor сопоставляет database.driver с диалектом. Все, что не sqlite, считается Postgres.
func DialectFor(driver string) Dialect {
	if driver == string(SQLite) {
		return SQLite
	}
	return Postgres
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		caller_id      TEXT NOT NULL,
		url            TEXT NOT NULL,
		target_url     TEXT NOT NULL DEFAULT '',
		repository_url TEXT NOT NULL DEFAULT '',
		metrics        JSONB,
		browser        JSONB,
		repo           JSONB,
		insights       JSONB NOT NULL,
		verdict        TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_caller ON sessions (caller_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS chat_turns (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS latest_sessions (
		caller_id  TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS probe_events (
		id          TEXT PRIMARY KEY,
		trace_id    TEXT NOT NULL DEFAULT '',
		session_id  TEXT NOT NULL,
		caller_id   TEXT NOT NULL DEFAULT '',
		step        TEXT NOT NULL,
		target      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		duration_ms BIGINT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_probe_events_session ON probe_events (session_id)`,
}

// В sqlite JSON и время храним текстом
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		caller_id      TEXT NOT NULL,
		url            TEXT NOT NULL,
		target_url     TEXT NOT NULL DEFAULT '',
		repository_url TEXT NOT NULL DEFAULT '',
		metrics        TEXT,
		browser        TEXT,
		repo           TEXT,
		insights       TEXT NOT NULL,
		verdict        TEXT NOT NULL,
		created_at     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_caller ON sessions (caller_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS chat_turns (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS latest_sessions (
		caller_id  TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS probe_events (
		id          TEXT PRIMARY KEY,
		trace_id    TEXT NOT NULL DEFAULT '',
		session_id  TEXT NOT NULL,
		caller_id   TEXT NOT NULL DEFAULT '',
		step        TEXT NOT NULL,
		target      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_probe_events_session ON probe_events (session_id)`,
}

// Migrate создает таблицы, если их нет. Повторный вызов безопасен.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == SQLite {
		stmts = sqliteSchema
	}
	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqldb: migrate step %d: %w", i+1, err)
		}
	}
	s.logger.Info("schema is up to date", zap.String("dialect", string(s.dialect)))
	return nil
}

// Rebind переписывает плейсхолдеры `?` в `$1..$n` для Postgres.
// Запросы пакета не содержат `?` внутри строковых литералов.
func Rebind(d Dialect, query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
