package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chris/daylog/internal/llm"
)

// LoadHistory returns nil for a user without a stored history.
func (d *DB) LoadHistory(ctx context.Context, userID string) ([]llm.Message, error) {
	var raw string
	err := d.conn.QueryRowContext(ctx, "SELECT messages FROM chat_history WHERE user_id = ?", userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", userID, err)
	}
	return decodeHistory(raw)
}

func (d *DB) SaveHistory(ctx context.Context, userID string, history []llm.Message) error {
	raw, err := encodeHistory(history)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, messages) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET messages = excluded.messages, updated_at = datetime('now')`,
		userID, raw)
	if err != nil {
		return fmt.Errorf("saving history for %s: %w", userID, err)
	}
	return nil
}

func encodeHistory(history []llm.Message) (string, error) {
	if history == nil {
		history = []llm.Message{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("encoding history: %w", err)
	}
	return string(b), nil
}

func decodeHistory(raw string) ([]llm.Message, error) {
	var history []llm.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return history, nil
}
