// Package pgstore is the Postgres store for conversation state, app markers
// and chat histories. It mirrors the SQLite store in internal/db.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chris/daylog/internal/convo"
	"github.com/chris/daylog/internal/llm"
	"github.com/chris/daylog/internal/plan"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS daylog_user_state (
    user_id      TEXT PRIMARY KEY,
    state        TEXT NOT NULL DEFAULT 'NONE',
    pending_plan JSONB,
    last_date    TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS daylog_app_state (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS daylog_chat_history (
    user_id    TEXT PRIMARY KEY,
    messages   JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to url, pings it and ensures the schema.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) GetUserState(ctx context.Context, userID string) (convo.UserState, error) {
	var state string
	var pending []byte
	var lastDate *string
	row := s.pool.QueryRow(ctx, `
INSERT INTO daylog_user_state (user_id) VALUES ($1)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING state, pending_plan, last_date`, userID)
	if err := row.Scan(&state, &pending, &lastDate); err != nil {
		return convo.UserState{}, fmt.Errorf("load state for %s: %w", userID, err)
	}

	parsed, err := convo.ParseState(state)
	if err != nil {
		return convo.UserState{}, err
	}
	st := convo.UserState{State: parsed}
	if lastDate != nil {
		st.LastDate = *lastDate
	}
	if parsed == convo.WaitPlanConfirm && len(pending) > 0 {
		var p plan.Plan
		if err := json.Unmarshal(pending, &p); err != nil {
			return convo.UserState{}, fmt.Errorf("decode pending plan: %w", err)
		}
		st.PendingPlan = &p
	}
	return st, nil
}

func (s *Store) SetUserState(ctx context.Context, userID string, st convo.UserState) error {
	if err := st.Validate(); err != nil {
		return err
	}
	var pending []byte
	if st.PendingPlan != nil {
		b, err := json.Marshal(st.PendingPlan)
		if err != nil {
			return fmt.Errorf("encode pending plan: %w", err)
		}
		pending = b
	}
	var lastDate *string
	if st.LastDate != "" {
		lastDate = &st.LastDate
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO daylog_user_state (user_id, state, pending_plan, last_date)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id)
DO UPDATE SET state = EXCLUDED.state,
              pending_plan = EXCLUDED.pending_plan,
              last_date = EXCLUDED.last_date,
              updated_at = now()`,
		userID, st.State.String(), pending, lastDate)
	if err != nil {
		return fmt.Errorf("save state for %s: %w", userID, err)
	}
	return nil
}

func (s *Store) GetAppMarker(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM daylog_app_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get marker %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetAppMarker(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO daylog_app_state (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	if err != nil {
		return fmt.Errorf("set marker %s: %w", key, err)
	}
	return nil
}

func (s *Store) LoadHistory(ctx context.Context, userID string) ([]llm.Message, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT messages FROM daylog_chat_history WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", userID, err)
	}
	var history []llm.Message
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return history, nil
}

func (s *Store) SaveHistory(ctx context.Context, userID string, history []llm.Message) error {
	if history == nil {
		history = []llm.Message{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO daylog_chat_history (user_id, messages) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = now()`, userID, raw)
	if err != nil {
		return fmt.Errorf("save history for %s: %w", userID, err)
	}
	return nil
}
