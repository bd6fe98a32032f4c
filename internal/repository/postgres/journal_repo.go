package postgres

/*
Файл journal_repo.go хранит журнал вызовов релея в PostgreSQL.
Пачка событий уходит одним INSERT с позиционными плейсхолдерами.
*/

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/vitalpolicy-relay/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS relay_calls (
	id          UUID PRIMARY KEY,
	trace_id    TEXT NOT NULL,
	route       TEXT NOT NULL,
	op          TEXT NOT NULL,
	upstream    TEXT NOT NULL,
	resource    TEXT,
	status      INT NOT NULL,
	fallback    BOOLEAN NOT NULL DEFAULT FALSE,
	payload     JSONB,
	duration_ms BIGINT NOT NULL,
	error       TEXT,
	timestamp   TIMESTAMPTZ NOT NULL
)`

// Количество колонок в relay_calls, которые пишет WriteBatch
const numFields = 12

type JournalRepo struct {
	db *sql.DB
}

// Open подключается через pgx stdlib и проверяет соединение
func Open(ctx context.Context, connString string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

func NewJournalRepo(db *sql.DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// EnsureSchema создает таблицу журнала, если ее нет
func (r *JournalRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (r *JournalRepo) WriteBatch(ctx context.Context, events []audit.CallEvent) error {
	if len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	vals := make([]any, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for f := 1; f <= numFields; f++ {
			if f > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*numFields+f)
		}
		sb.WriteString(")")

		// JSONB не принимает пустую строку
		var payload any
		if len(e.Payload) > 0 {
			payload = []byte(e.Payload)
		}

		vals = append(vals,
			e.ID, e.TraceID, e.Route, e.Op, e.Upstream, nullable(e.Resource),
			e.Status, e.Fallback, payload, e.DurationMs, nullable(e.Error), e.Timestamp,
		)
	}

	query := "INSERT INTO relay_calls (id, trace_id, route, op, upstream, resource, status, fallback, payload, duration_ms, error, timestamp) VALUES " + sb.String()

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write journal batch of %d: %w", len(events), err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
