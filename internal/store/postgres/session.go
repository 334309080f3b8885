package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kingsalliance/bidbot/internal/store"
)

// SessionRepo implements store.SessionRepository with sqlx.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo returns a new SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, s *store.Session) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO sessions (id, recruit_id, player_tag, player_name, town_hall_level,
		                       discord_user_id, channel_id, thread_id, message_id,
		                       bid_end_time, created_at, started_by)
		 VALUES (:id, :recruit_id, :player_tag, :player_name, :town_hall_level,
		         :discord_user_id, :channel_id, :thread_id, :message_id,
		         :bid_end_time, :created_at, :started_by)`, s)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*store.Session, error) {
	var s store.Session
	err := r.db.GetContext(ctx, &s, `SELECT * FROM sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepo) SetMessageID(ctx context.Context, id, messageID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET message_id = $1 WHERE id = $2`, messageID, id)
	if err != nil {
		return fmt.Errorf("setting session message: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (r *SessionRepo) ListAll(ctx context.Context) ([]store.Session, error) {
	var sessions []store.Session
	err := r.db.SelectContext(ctx, &sessions, `SELECT * FROM sessions ORDER BY bid_end_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}
