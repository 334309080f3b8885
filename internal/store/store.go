package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Errors returned by repositories. Drivers map their native failures
// (missing rows, unique violations, conditional updates matching nothing)
// onto these so callers never inspect driver error types.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateBid     = errors.New("clan already has an open bid")
	ErrAlreadyFinalized = errors.New("auction already finalized")
)

// Clan holds a clan's points ledger. Points is the settled balance;
// PlaceholderPoints is the sum held against the clan's open bids.
type Clan struct {
	bun.BaseModel `bun:"table:clans,alias:c"`

	Tag               string          `db:"tag" bun:"tag,pk"`
	Name              string          `db:"name" bun:"name"`
	LeaderRoleID      string          `db:"leader_role_id" bun:"leader_role_id"`
	Points            decimal.Decimal `db:"points" bun:"points"`
	PlaceholderPoints decimal.Decimal `db:"placeholder_points" bun:"placeholder_points"`
	CreatedAt         time.Time       `db:"created_at" bun:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" bun:"updated_at"`
}

// Available returns the balance a clan may still bid with.
func (c *Clan) Available() decimal.Decimal {
	return c.Points.Sub(c.PlaceholderPoints)
}

// Recruit is one player account offered for bidding. ActiveBid acts as a
// mutual-exclusion latch: at most one open session may exist per recruit.
type Recruit struct {
	bun.BaseModel `bun:"table:recruits,alias:r"`

	ID            string    `db:"id" bun:"id,pk"`
	DiscordUserID string    `db:"discord_user_id" bun:"discord_user_id"`
	PlayerName    string    `db:"player_name" bun:"player_name"`
	PlayerTag     string    `db:"player_tag" bun:"player_tag"`
	TownHallLevel int       `db:"town_hall_level" bun:"town_hall_level"`
	ActiveBid     bool      `db:"active_bid" bun:"active_bid"`
	TicketOpen    bool      `db:"ticket_open" bun:"ticket_open"`
	CreatedAt     time.Time `db:"created_at" bun:"created_at"`
}

// AuctionRecord is the cumulative bid list and outcome for one player tag.
// It outlives the session as an audit record once finalized.
type AuctionRecord struct {
	bun.BaseModel `bun:"table:auction_records,alias:ar"`

	PlayerTag   string          `db:"player_tag" bun:"player_tag,pk"`
	IsFinalized bool            `db:"is_finalized" bun:"is_finalized"`
	Winner      string          `db:"winner" bun:"winner"`
	Amount      decimal.Decimal `db:"amount" bun:"amount"`
	CreatedAt   time.Time       `db:"created_at" bun:"created_at"`
	FinalizedAt *time.Time      `db:"finalized_at" bun:"finalized_at"`

	Bids []Bid `db:"-" bun:"-"`
}

// Bid is a single clan's offer within an auction record. One per clan per
// open round.
type Bid struct {
	bun.BaseModel `bun:"table:auction_bids,alias:b"`

	PlayerTag string          `db:"player_tag" bun:"player_tag"`
	ClanTag   string          `db:"clan_tag" bun:"clan_tag"`
	PlacedBy  string          `db:"placed_by" bun:"placed_by"`
	Amount    decimal.Decimal `db:"amount" bun:"amount"`
	PlacedAt  time.Time       `db:"placed_at" bun:"placed_at"`
}

// Session is one timed bidding round for a recruit. Sessions are durable so
// a restart can rebuild the in-memory timers that were lost with the process.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID            string    `db:"id" bun:"id,pk"`
	RecruitID     string    `db:"recruit_id" bun:"recruit_id"`
	PlayerTag     string    `db:"player_tag" bun:"player_tag"`
	PlayerName    string    `db:"player_name" bun:"player_name"`
	TownHallLevel int       `db:"town_hall_level" bun:"town_hall_level"`
	DiscordUserID string    `db:"discord_user_id" bun:"discord_user_id"`
	ChannelID     string    `db:"channel_id" bun:"channel_id"`
	ThreadID      string    `db:"thread_id" bun:"thread_id"`
	MessageID     string    `db:"message_id" bun:"message_id"`
	BidEndTime    time.Time `db:"bid_end_time" bun:"bid_end_time"`
	CreatedAt     time.Time `db:"created_at" bun:"created_at"`
	StartedBy     string    `db:"started_by" bun:"started_by"`
}

// ClanRepository defines clan ledger persistence. Hold, release and deduct
// are single atomic increments scoped to one clan row.
type ClanRepository interface {
	GetByTag(ctx context.Context, tag string) (*Clan, error)
	List(ctx context.Context) ([]Clan, error)
	// HoldPoints increments the clan's placeholder balance by amount.
	HoldPoints(ctx context.Context, tag string, amount decimal.Decimal) error
	// ReleaseHold decrements the clan's placeholder balance by amount,
	// never below zero.
	ReleaseHold(ctx context.Context, tag string, amount decimal.Decimal) error
	// DeductPoints decrements the clan's settled points by amount.
	DeductPoints(ctx context.Context, tag string, amount decimal.Decimal) error
}

// RecruitRepository defines recruit persistence.
type RecruitRepository interface {
	GetByID(ctx context.Context, id string) (*Recruit, error)
	ListAvailableByUser(ctx context.Context, discordUserID string) ([]Recruit, error)
	// ClaimActiveBid atomically flips active_bid from false to true.
	// It reports false when another session already holds the claim.
	ClaimActiveBid(ctx context.Context, id string) (bool, error)
	// ReleaseActiveBid resets active_bid to false unconditionally.
	ReleaseActiveBid(ctx context.Context, id string) error
	// CloseTicket marks the recruit's ticket as no longer open.
	CloseTicket(ctx context.Context, id string) error
	// CountActiveBids returns how many recruits currently hold the latch.
	CountActiveBids(ctx context.Context) (int, error)
}

// AuctionRepository defines auction record persistence.
type AuctionRepository interface {
	// GetByPlayerTag returns the record with its bids, or ErrNotFound.
	GetByPlayerTag(ctx context.Context, playerTag string) (*AuctionRecord, error)
	// AppendBid upserts an open record for the player tag and inserts the
	// bid. Returns ErrDuplicateBid if the clan already has an open bid on
	// this tag, ErrAlreadyFinalized if the record is closed.
	AppendBid(ctx context.Context, bid Bid) error
	// RemoveBid deletes the clan's bid placed by the given user and
	// returns it, or ErrNotFound.
	RemoveBid(ctx context.Context, playerTag, clanTag, placedBy string) (*Bid, error)
	// Finalize marks the record finalized with the outcome, creating it
	// if absent. Returns ErrAlreadyFinalized when a previous finalization
	// already won the race.
	Finalize(ctx context.Context, playerTag, winner string, amount decimal.Decimal) error
	// DeleteOrphaned removes an unfinalized record that has no bids,
	// left behind by a round that never closed cleanly. Missing records
	// are not an error.
	DeleteOrphaned(ctx context.Context, playerTag string) error
	// DeleteFinalized clears the settled record from an earlier round,
	// bids included, so the player tag can be auctioned again. The
	// outcome remains in the event log. Missing records are not an error.
	DeleteFinalized(ctx context.Context, playerTag string) error
}

// SessionRepository defines bidding session persistence.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	SetMessageID(ctx context.Context, id, messageID string) error
	Delete(ctx context.Context, id string) error
	// ListAll returns every persisted session, for the recovery sweep.
	ListAll(ctx context.Context) ([]Session, error)
}
