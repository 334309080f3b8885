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

// AuctionRepo implements store.AuctionRepository with bun.
type AuctionRepo struct {
	db    *bun.DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *bun.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clock: clk}
}

func (r *AuctionRepo) GetByPlayerTag(ctx context.Context, playerTag string) (*store.AuctionRecord, error) {
	rec := new(store.AuctionRecord)
	err := r.db.NewSelect().Model(rec).Where("player_tag = ?", playerTag).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction record: %w", err)
	}

	err = r.db.NewSelect().Model(&rec.Bids).
		Where("player_tag = ?", playerTag).
		Order("placed_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting auction bids: %w", err)
	}
	return rec, nil
}

// AppendBid upserts the open record and inserts the bid. The bids table's
// (player_tag, clan_tag) primary key enforces one open bid per clan.
func (r *AuctionRepo) AppendBid(ctx context.Context, bid store.Bid) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rec := &store.AuctionRecord{PlayerTag: bid.PlayerTag, CreatedAt: r.clock.Now().UTC()}
		if _, err := tx.NewInsert().Model(rec).
			Column("player_tag", "created_at").
			On("CONFLICT (player_tag) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("upserting auction record: %w", err)
		}

		// Lock the record row so a concurrent finalization cannot slip in
		// between the check and the insert.
		var finalized bool
		err := tx.NewSelect().Model((*store.AuctionRecord)(nil)).
			Column("is_finalized").
			Where("player_tag = ?", bid.PlayerTag).
			For("UPDATE").
			Scan(ctx, &finalized)
		if err != nil {
			return fmt.Errorf("checking auction record: %w", err)
		}
		if finalized {
			return store.ErrAlreadyFinalized
		}

		if _, err := tx.NewInsert().Model(&bid).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateBid
			}
			return fmt.Errorf("inserting bid: %w", err)
		}
		return nil
	})
}

func (r *AuctionRepo) RemoveBid(ctx context.Context, playerTag, clanTag, placedBy string) (*store.Bid, error) {
	bid := new(store.Bid)
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var finalized bool
		err := tx.NewSelect().Model((*store.AuctionRecord)(nil)).
			Column("is_finalized").
			Where("player_tag = ?", playerTag).
			For("UPDATE").
			Scan(ctx, &finalized)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking auction record: %w", err)
		}
		if finalized {
			return store.ErrNotFound
		}

		res, err := tx.NewDelete().Model(bid).
			Where("player_tag = ? AND clan_tag = ? AND placed_by = ?", playerTag, clanTag, placedBy).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("removing bid: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// Finalize claims the terminal transition. The conditional upsert matches
// zero rows when another finalization already won, which keeps double ends
// idempotent.
func (r *AuctionRepo) Finalize(ctx context.Context, playerTag, winner string, amount decimal.Decimal) error {
	now := r.clock.Now().UTC()
	rec := &store.AuctionRecord{
		PlayerTag:   playerTag,
		IsFinalized: true,
		Winner:      winner,
		Amount:      amount,
		CreatedAt:   now,
		FinalizedAt: &now,
	}
	res, err := r.db.NewInsert().Model(rec).
		On("CONFLICT (player_tag) DO UPDATE").
		Set("is_finalized = TRUE").
		Set("winner = EXCLUDED.winner").
		Set("amount = EXCLUDED.amount").
		Set("finalized_at = EXCLUDED.finalized_at").
		Where("ar.is_finalized = FALSE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finalizing auction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAlreadyFinalized
	}
	return nil
}

func (r *AuctionRepo) DeleteOrphaned(ctx context.Context, playerTag string) error {
	_, err := r.db.NewDelete().Model((*store.AuctionRecord)(nil)).
		Where("player_tag = ? AND is_finalized = FALSE", playerTag).
		Where("NOT EXISTS (SELECT 1 FROM auction_bids WHERE player_tag = ?)", playerTag).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting orphaned auction record: %w", err)
	}
	return nil
}

// DeleteFinalized clears the settled record of a previous round for this
// tag. The bids cascade with the record row.
func (r *AuctionRepo) DeleteFinalized(ctx context.Context, playerTag string) error {
	_, err := r.db.NewDelete().Model((*store.AuctionRecord)(nil)).
		Where("player_tag = ? AND is_finalized = TRUE", playerTag).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting finalized auction record: %w", err)
	}
	return nil
}
