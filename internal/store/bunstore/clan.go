package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/kingsalliance/bidbot/internal/clock"
	"github.com/kingsalliance/bidbot/internal/store"
)

// ClanRepo implements store.ClanRepository with bun.
type ClanRepo struct {
	db    *bun.DB
	clock clock.Clock
}

// NewClanRepo returns a new ClanRepo.
func NewClanRepo(db *bun.DB, clk clock.Clock) *ClanRepo {
	return &ClanRepo{db: db, clock: clk}
}

func (r *ClanRepo) GetByTag(ctx context.Context, tag string) (*store.Clan, error) {
	c := new(store.Clan)
	err := r.db.NewSelect().Model(c).Where("tag = ?", tag).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting clan by tag: %w", err)
	}
	return c, nil
}

func (r *ClanRepo) List(ctx context.Context) ([]store.Clan, error) {
	var clans []store.Clan
	err := r.db.NewSelect().Model(&clans).Order("name ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing clans: %w", err)
	}
	return clans, nil
}

func (r *ClanRepo) HoldPoints(ctx context.Context, tag string, amount decimal.Decimal) error {
	res, err := r.db.NewUpdate().Model((*store.Clan)(nil)).
		Set("placeholder_points = placeholder_points + ?", amount).
		Set("updated_at = ?", r.clock.Now().UTC()).
		Where("tag = ?", tag).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("holding points: %w", err)
	}
	return oneRow(res, tag)
}

func (r *ClanRepo) ReleaseHold(ctx context.Context, tag string, amount decimal.Decimal) error {
	// Floored at zero so a stray double-release can never drive the hold negative.
	res, err := r.db.NewUpdate().Model((*store.Clan)(nil)).
		Set("placeholder_points = GREATEST(placeholder_points - ?, 0)", amount).
		Set("updated_at = ?", r.clock.Now().UTC()).
		Where("tag = ?", tag).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("releasing hold: %w", err)
	}
	return oneRow(res, tag)
}

func (r *ClanRepo) DeductPoints(ctx context.Context, tag string, amount decimal.Decimal) error {
	res, err := r.db.NewUpdate().Model((*store.Clan)(nil)).
		Set("points = points - ?", amount).
		Set("updated_at = ?", r.clock.Now().UTC()).
		Where("tag = ?", tag).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deducting points: %w", err)
	}
	return oneRow(res, tag)
}

func oneRow(res sql.Result, tag string) error {
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("clan %s: %w", tag, store.ErrNotFound)
	}
	return nil
}
