package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chris/daylog/internal/convo"
	"github.com/chris/daylog/internal/plan"
)

// GetUserState returns the user's state, inserting the default row on first
// contact.
func (d *DB) GetUserState(ctx context.Context, userID string) (convo.UserState, error) {
	if _, err := d.conn.ExecContext(ctx,
		"INSERT INTO user_state (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING", userID); err != nil {
		return convo.UserState{}, fmt.Errorf("creating state for %s: %w", userID, err)
	}

	var state string
	var pending, lastDate sql.NullString
	err := d.conn.QueryRowContext(ctx,
		"SELECT state, pending_plan, last_date FROM user_state WHERE user_id = ?", userID,
	).Scan(&state, &pending, &lastDate)
	if err != nil {
		return convo.UserState{}, fmt.Errorf("loading state for %s: %w", userID, err)
	}
	return decodeState(state, pending.String, lastDate.String)
}

func (d *DB) SetUserState(ctx context.Context, userID string, st convo.UserState) error {
	state, pending, err := encodeState(st)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx, `
		INSERT INTO user_state (user_id, state, pending_plan, last_date) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			pending_plan = excluded.pending_plan,
			last_date = excluded.last_date,
			updated_at = datetime('now')`,
		userID, state, nullStr(pending), nullStr(st.LastDate))
	if err != nil {
		return fmt.Errorf("saving state for %s: %w", userID, err)
	}
	return nil
}

// GetAppMarker returns "" for a key that was never set.
func (d *DB) GetAppMarker(ctx context.Context, key string) (string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, "SELECT value FROM app_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting marker %s: %w", key, err)
	}
	return value, nil
}

func (d *DB) SetAppMarker(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
		key, value)
	if err != nil {
		return fmt.Errorf("setting marker %s: %w", key, err)
	}
	return nil
}

// encodeState validates st and renders the columns stored for it.
func encodeState(st convo.UserState) (state, pending string, err error) {
	if err := st.Validate(); err != nil {
		return "", "", err
	}
	if st.PendingPlan != nil {
		b, err := json.Marshal(st.PendingPlan)
		if err != nil {
			return "", "", fmt.Errorf("encoding pending plan: %w", err)
		}
		pending = string(b)
	}
	return st.State.String(), pending, nil
}

func decodeState(state, pending, lastDate string) (convo.UserState, error) {
	s, err := convo.ParseState(state)
	if err != nil {
		return convo.UserState{}, err
	}
	st := convo.UserState{State: s, LastDate: lastDate}
	if pending != "" {
		var p plan.Plan
		if err := json.Unmarshal([]byte(pending), &p); err != nil {
			return convo.UserState{}, fmt.Errorf("decoding pending plan: %w", err)
		}
		st.PendingPlan = &p
	}
	// A plan left behind by an older write is not surfaced outside confirm.
	if st.State != convo.WaitPlanConfirm {
		st.PendingPlan = nil
	}
	return st, nil
}

func nullStr(s string) any {
	if s == "" || s == "null" {
		return nil
	}
	return s
}
