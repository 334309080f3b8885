package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/kingsalliance/bidbot/internal/clock"
	"github.com/kingsalliance/bidbot/internal/store"
)

// pqUniqueViolation is the Postgres error code for unique constraint failures.
const pqUniqueViolation = "23505"

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clock: clk}
}

func (r *AuctionRepo) GetByPlayerTag(ctx context.Context, playerTag string) (*store.AuctionRecord, error) {
	var rec store.AuctionRecord
	err := r.db.GetContext(ctx, &rec,
		`SELECT * FROM auction_records WHERE player_tag = $1`, playerTag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction record: %w", err)
	}

	err = r.db.SelectContext(ctx, &rec.Bids,
		`SELECT * FROM auction_bids WHERE player_tag = $1 ORDER BY placed_at ASC`, playerTag)
	if err != nil {
		return nil, fmt.Errorf("getting auction bids: %w", err)
	}
	return &rec, nil
}

// AppendBid upserts the open record and inserts the bid. The bids table's
// (player_tag, clan_tag) primary key enforces one open bid per clan.
func (r *AuctionRepo) AppendBid(ctx context.Context, bid store.Bid) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auction_records (player_tag, created_at) VALUES ($1, $2)
		 ON CONFLICT (player_tag) DO NOTHING`,
		bid.PlayerTag, r.clock.Now().UTC(),
	); err != nil {
		return fmt.Errorf("upserting auction record: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO auction_bids (player_tag, clan_tag, placed_by, amount, placed_at)
		 SELECT $1, $2, $3, $4, $5
		 WHERE EXISTS (
		     SELECT 1 FROM auction_records WHERE player_tag = $1 AND is_finalized = FALSE
		 )`,
		bid.PlayerTag, bid.ClanTag, bid.PlacedBy, bid.Amount, bid.PlacedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return store.ErrDuplicateBid
		}
		return fmt.Errorf("inserting bid: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrAlreadyFinalized
	}

	return tx.Commit()
}

func (r *AuctionRepo) RemoveBid(ctx context.Context, playerTag, clanTag, placedBy string) (*store.Bid, error) {
	var bid store.Bid
	err := r.db.GetContext(ctx, &bid,
		`DELETE FROM auction_bids b
		 USING auction_records rec
		 WHERE rec.player_tag = b.player_tag AND rec.is_finalized = FALSE
		   AND b.player_tag = $1 AND b.clan_tag = $2 AND b.placed_by = $3
		 RETURNING b.player_tag, b.clan_tag, b.placed_by, b.amount, b.placed_at`,
		playerTag, clanTag, placedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("removing bid: %w", err)
	}
	return &bid, nil
}

// Finalize claims the terminal transition. The conditional upsert matches
// zero rows when another finalization already won, which keeps double ends
// idempotent.
func (r *AuctionRepo) Finalize(ctx context.Context, playerTag, winner string, amount decimal.Decimal) error {
	now := r.clock.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO auction_records (player_tag, is_finalized, winner, amount, created_at, finalized_at)
		 VALUES ($1, TRUE, $2, $3, $4, $4)
		 ON CONFLICT (player_tag) DO UPDATE
		 SET is_finalized = TRUE, winner = EXCLUDED.winner, amount = EXCLUDED.amount,
		     finalized_at = EXCLUDED.finalized_at
		 WHERE auction_records.is_finalized = FALSE`,
		playerTag, winner, amount, now,
	)
	if err != nil {
		return fmt.Errorf("finalizing auction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrAlreadyFinalized
	}
	return nil
}

func (r *AuctionRepo) DeleteOrphaned(ctx context.Context, playerTag string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM auction_records
		 WHERE player_tag = $1 AND is_finalized = FALSE
		   AND NOT EXISTS (SELECT 1 FROM auction_bids WHERE player_tag = $1)`,
		playerTag,
	)
	if err != nil {
		return fmt.Errorf("deleting orphaned auction record: %w", err)
	}
	return nil
}

// DeleteFinalized clears the settled record of a previous round for this
// tag. The bids cascade with the record row.
func (r *AuctionRepo) DeleteFinalized(ctx context.Context, playerTag string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM auction_records WHERE player_tag = $1 AND is_finalized = TRUE`,
		playerTag,
	)
	if err != nil {
		return fmt.Errorf("deleting finalized auction record: %w", err)
	}
	return nil
}
