package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kingsalliance/bidbot/internal/store"
)

// RecruitRepo implements store.RecruitRepository with sqlx.
type RecruitRepo struct {
	db *sqlx.DB
}

// NewRecruitRepo returns a new RecruitRepo.
func NewRecruitRepo(db *sqlx.DB) *RecruitRepo {
	return &RecruitRepo{db: db}
}

func (r *RecruitRepo) GetByID(ctx context.Context, id string) (*store.Recruit, error) {
	var rec store.Recruit
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM recruits WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting recruit: %w", err)
	}
	return &rec, nil
}

func (r *RecruitRepo) ListAvailableByUser(ctx context.Context, discordUserID string) ([]store.Recruit, error) {
	var recruits []store.Recruit
	err := r.db.SelectContext(ctx, &recruits,
		`SELECT * FROM recruits
		 WHERE discord_user_id = $1 AND active_bid = FALSE AND ticket_open = TRUE
		 ORDER BY created_at ASC`, discordUserID)
	if err != nil {
		return nil, fmt.Errorf("listing available recruits: %w", err)
	}
	return recruits, nil
}

// ClaimActiveBid flips active_bid from false to true in a single statement,
// so two concurrent session starts cannot both succeed.
func (r *RecruitRepo) ClaimActiveBid(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE recruits SET active_bid = TRUE WHERE id = $1 AND active_bid = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("claiming active bid: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (r *RecruitRepo) ReleaseActiveBid(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recruits SET active_bid = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("releasing active bid: %w", err)
	}
	return nil
}

func (r *RecruitRepo) CloseTicket(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recruits SET ticket_open = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("closing ticket: %w", err)
	}
	return nil
}

func (r *RecruitRepo) CountActiveBids(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM recruits WHERE active_bid = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("counting active bids: %w", err)
	}
	return n, nil
}
