package bidding

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kingsalliance/bidbot/internal/store"
)

func bid(clanTag string, amount float64) store.Bid {
	return store.Bid{ClanTag: clanTag, Amount: decimal.NewFromFloat(amount)}
}

func neverRand(int) int {
	panic("tie-break draw without a tie")
}

func TestDecideOutcome_NoBids(t *testing.T) {
	out := decideOutcome(nil, neverRand)
	if out.Kind != NoBids {
		t.Fatalf("Kind = %q, want %q", out.Kind, NoBids)
	}
	if out.Winner != NoBidsWinner {
		t.Errorf("Winner = %q, want %q", out.Winner, NoBidsWinner)
	}
	if !out.Amount.IsZero() {
		t.Errorf("Amount = %s, want 0", out.Amount)
	}
}

func TestDecideOutcome_SingleBidPaysNothing(t *testing.T) {
	out := decideOutcome([]store.Bid{bid("#X", 3.5)}, neverRand)
	if out.Kind != SingleBid {
		t.Fatalf("Kind = %q, want %q", out.Kind, SingleBid)
	}
	if out.Winner != "#X" {
		t.Errorf("Winner = %q, want %q", out.Winner, "#X")
	}
	if !out.Amount.IsZero() {
		t.Errorf("Amount = %s, want 0 (sole bidder pays nothing)", out.Amount)
	}
}

func TestDecideOutcome_MultiBidHighestWins(t *testing.T) {
	out := decideOutcome([]store.Bid{bid("#X", 2), bid("#Y", 4.5), bid("#Z", 3)}, neverRand)
	if out.Kind != MultiBid {
		t.Fatalf("Kind = %q, want %q", out.Kind, MultiBid)
	}
	if out.Winner != "#Y" {
		t.Errorf("Winner = %q, want %q", out.Winner, "#Y")
	}
	if !out.Amount.Equal(decimal.NewFromFloat(4.5)) {
		t.Errorf("Amount = %s, want 4.5", out.Amount)
	}
	if out.TieBreak {
		t.Error("TieBreak should be false with a unique highest bid")
	}
}

func TestDecideOutcome_TieBreak(t *testing.T) {
	bids := []store.Bid{bid("#X", 2), bid("#Y", 4.5), bid("#Z", 4.5)}

	for draw, want := range map[int]string{0: "#Y", 1: "#Z"} {
		out := decideOutcome(bids, func(n int) int {
			if n != 2 {
				t.Fatalf("draw over %d candidates, want 2", n)
			}
			return draw
		})
		if out.Winner != want {
			t.Errorf("draw %d: Winner = %q, want %q", draw, out.Winner, want)
		}
		if !out.TieBreak {
			t.Error("TieBreak should be set")
		}
		if len(out.TieCandidates) != 2 || out.TieCandidates[0] != "#Y" || out.TieCandidates[1] != "#Z" {
			t.Errorf("TieCandidates = %v, want [#Y #Z]", out.TieCandidates)
		}
		if !out.Amount.Equal(decimal.NewFromFloat(4.5)) {
			t.Errorf("Amount = %s, want 4.5", out.Amount)
		}
	}
}

func TestValidIncrement(t *testing.T) {
	cases := []struct {
		amount float64
		want   bool
	}{
		{0, true},
		{0.5, true},
		{1, true},
		{3.5, true},
		{1.3, false},
		{0.25, false},
		{-0.5, false},
	}
	for _, tc := range cases {
		if got := validIncrement(decimal.NewFromFloat(tc.amount)); got != tc.want {
			t.Errorf("validIncrement(%v) = %v, want %v", tc.amount, got, tc.want)
		}
	}
}
