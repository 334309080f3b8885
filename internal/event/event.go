package event

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Type identifies an event kind.
type Type string

const (
	SessionStarted   Type = "bidding.session_started"
	SessionFinalized Type = "bidding.session_finalized"
	BidPlaced        Type = "bidding.bid_placed"
	BidRemoved       Type = "bidding.bid_removed"
	SessionRecovered Type = "bidding.session_recovered"
	SessionDiscarded Type = "bidding.session_discarded"
)

// Event represents a single domain event. AggregateID is the bidding
// session id for session events and the player tag for bid events.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:e" json:"-"`

	ID          string          `json:"id" db:"id" bun:"id,pk"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id" bun:"aggregate_id"`
	Type        Type            `json:"type" db:"type" bun:"type"`
	Data        json.RawMessage `json:"data" db:"data" bun:"data"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at" bun:"created_at"`
}

// SessionStartedData is the payload for SessionStarted events.
type SessionStartedData struct {
	RecruitID  string    `json:"recruit_id"`
	PlayerTag  string    `json:"player_tag"`
	StartedBy  string    `json:"started_by"`
	BidEndTime time.Time `json:"bid_end_time"`
}

// BidChangeData is the payload for BidPlaced and BidRemoved events.
type BidChangeData struct {
	SessionID string          `json:"session_id"`
	ClanTag   string          `json:"clan_tag"`
	PlacedBy  string          `json:"placed_by"`
	Amount    decimal.Decimal `json:"amount"`
}

// SessionFinalizedData is the payload for SessionFinalized events.
// TieCandidates records the clan tags that shared the highest bid when the
// winner was chosen at random, so tie-breaks stay auditable.
type SessionFinalizedData struct {
	PlayerTag     string          `json:"player_tag"`
	Outcome       string          `json:"outcome"`
	Winner        string          `json:"winner"`
	Amount        decimal.Decimal `json:"amount"`
	TieBreak      bool            `json:"tie_break"`
	TieCandidates []string        `json:"tie_candidates,omitempty"`
	TriggeredBy   string          `json:"triggered_by"`
}

// SessionDiscardedData is the payload for SessionDiscarded events, emitted
// when recovery gives up on a session and fails open.
type SessionDiscardedData struct {
	RecruitID string `json:"recruit_id"`
	PlayerTag string `json:"player_tag"`
	Reason    string `json:"reason"`
}
