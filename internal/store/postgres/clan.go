package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kingsalliance/bidbot/internal/clock"
	"github.com/kingsalliance/bidbot/internal/store"
)

// ClanRepo implements store.ClanRepository with sqlx.
type ClanRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewClanRepo returns a new ClanRepo.
func NewClanRepo(db *sqlx.DB, clk clock.Clock) *ClanRepo {
	return &ClanRepo{db: db, clock: clk}
}

func (r *ClanRepo) GetByTag(ctx context.Context, tag string) (*store.Clan, error) {
	var c store.Clan
	err := r.db.GetContext(ctx, &c, `SELECT * FROM clans WHERE tag = $1`, tag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting clan by tag: %w", err)
	}
	return &c, nil
}

func (r *ClanRepo) List(ctx context.Context) ([]store.Clan, error) {
	var clans []store.Clan
	err := r.db.SelectContext(ctx, &clans, `SELECT * FROM clans ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing clans: %w", err)
	}
	return clans, nil
}

func (r *ClanRepo) HoldPoints(ctx context.Context, tag string, amount decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE clans SET placeholder_points = placeholder_points + $1, updated_at = $2 WHERE tag = $3`,
		amount, r.clock.Now().UTC(), tag,
	)
	if err != nil {
		return fmt.Errorf("holding points: %w", err)
	}
	return oneRow(result, tag)
}

func (r *ClanRepo) ReleaseHold(ctx context.Context, tag string, amount decimal.Decimal) error {
	// Floored at zero so a stray double-release can never drive the hold negative.
	result, err := r.db.ExecContext(ctx,
		`UPDATE clans SET placeholder_points = GREATEST(placeholder_points - $1, 0), updated_at = $2 WHERE tag = $3`,
		amount, r.clock.Now().UTC(), tag,
	)
	if err != nil {
		return fmt.Errorf("releasing hold: %w", err)
	}
	return oneRow(result, tag)
}

func (r *ClanRepo) DeductPoints(ctx context.Context, tag string, amount decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE clans SET points = points - $1, updated_at = $2 WHERE tag = $3`,
		amount, r.clock.Now().UTC(), tag,
	)
	if err != nil {
		return fmt.Errorf("deducting points: %w", err)
	}
	return oneRow(result, tag)
}

func oneRow(result sql.Result, tag string) error {
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("clan %s: %w", tag, store.ErrNotFound)
	}
	return nil
}
