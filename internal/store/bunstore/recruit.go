package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/kingsalliance/bidbot/internal/store"
)

// RecruitRepo implements store.RecruitRepository with bun.
type RecruitRepo struct {
	db *bun.DB
}

// NewRecruitRepo returns a new RecruitRepo.
func NewRecruitRepo(db *bun.DB) *RecruitRepo {
	return &RecruitRepo{db: db}
}

func (r *RecruitRepo) GetByID(ctx context.Context, id string) (*store.Recruit, error) {
	rec := new(store.Recruit)
	err := r.db.NewSelect().Model(rec).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting recruit: %w", err)
	}
	return rec, nil
}

func (r *RecruitRepo) ListAvailableByUser(ctx context.Context, discordUserID string) ([]store.Recruit, error) {
	var recruits []store.Recruit
	err := r.db.NewSelect().Model(&recruits).
		Where("discord_user_id = ?", discordUserID).
		Where("active_bid = FALSE").
		Where("ticket_open = TRUE").
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing available recruits: %w", err)
	}
	return recruits, nil
}

// ClaimActiveBid flips active_bid from false to true in a single statement,
// so two concurrent session starts cannot both succeed.
func (r *RecruitRepo) ClaimActiveBid(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewUpdate().Model((*store.Recruit)(nil)).
		Set("active_bid = TRUE").
		Where("id = ? AND active_bid = FALSE", id).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("claiming active bid: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RecruitRepo) ReleaseActiveBid(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().Model((*store.Recruit)(nil)).
		Set("active_bid = FALSE").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("releasing active bid: %w", err)
	}
	return nil
}

func (r *RecruitRepo) CloseTicket(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().Model((*store.Recruit)(nil)).
		Set("ticket_open = FALSE").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("closing ticket: %w", err)
	}
	return nil
}

func (r *RecruitRepo) CountActiveBids(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().Model((*store.Recruit)(nil)).
		Where("active_bid = TRUE").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting active bids: %w", err)
	}
	return n, nil
}
