package bidding

import (
	"github.com/shopspring/decimal"

	"github.com/kingsalliance/bidbot/internal/store"
)

// OutcomeKind tags the terminal state a session resolved to.
type OutcomeKind string

const (
	NoBids    OutcomeKind = "no_bids"
	SingleBid OutcomeKind = "single_bid"
	MultiBid  OutcomeKind = "multi_bid"
)

// NoBidsWinner is recorded as the winner when a session closes without bids.
const NoBidsWinner = "NO_BIDS"

// DiscardedWinner is recorded when recovery gives up on a round and seals
// its record without a settlement.
const DiscardedWinner = "DISCARDED"

// Outcome is the decided result of a closed session. Amount is what the
// winner pays from settled points: the highest bid on a multi-bid close,
// zero otherwise. A sole bidder wins for free.
type Outcome struct {
	Kind   OutcomeKind
	Winner string
	Amount decimal.Decimal

	// TieBreak is set when the winner was drawn at random among
	// TieCandidates, the clans sharing the highest bid.
	TieBreak      bool
	TieCandidates []string

	Bids []store.Bid
}

// decideOutcome resolves the bid list to an outcome. randInt supplies the
// tie-break draw and must return a value in [0, n).
func decideOutcome(bids []store.Bid, randInt func(n int) int) Outcome {
	switch len(bids) {
	case 0:
		return Outcome{Kind: NoBids, Winner: NoBidsWinner, Amount: decimal.Zero}
	case 1:
		return Outcome{
			Kind:   SingleBid,
			Winner: bids[0].ClanTag,
			Amount: decimal.Zero,
			Bids:   bids,
		}
	}

	highest := bids[0].Amount
	for _, b := range bids[1:] {
		if b.Amount.GreaterThan(highest) {
			highest = b.Amount
		}
	}

	var top []string
	for _, b := range bids {
		if b.Amount.Equal(highest) {
			top = append(top, b.ClanTag)
		}
	}

	out := Outcome{
		Kind:   MultiBid,
		Winner: top[0],
		Amount: highest,
		Bids:   bids,
	}
	if len(top) > 1 {
		out.Winner = top[randInt(len(top))]
		out.TieBreak = true
		out.TieCandidates = top
	}
	return out
}
