package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/kingsalliance/bidbot/internal/store"
)

// SessionRepo implements store.SessionRepository with bun.
type SessionRepo struct {
	db *bun.DB
}

// NewSessionRepo returns a new SessionRepo.
func NewSessionRepo(db *bun.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, s *store.Session) error {
	if _, err := r.db.NewInsert().Model(s).Exec(ctx); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*store.Session, error) {
	s := new(store.Session)
	err := r.db.NewSelect().Model(s).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) SetMessageID(ctx context.Context, id, messageID string) error {
	res, err := r.db.NewUpdate().Model((*store.Session)(nil)).
		Set("message_id = ?", messageID).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("setting session message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model((*store.Session)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (r *SessionRepo) ListAll(ctx context.Context) ([]store.Session, error) {
	var sessions []store.Session
	err := r.db.NewSelect().Model(&sessions).Order("bid_end_time ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}
