package bidding

import (
	"fmt"
	"strings"

	"github.com/kingsalliance/bidbot/internal/store"
)

// renderAnnouncement builds the auction message content, re-rendered after
// every bid change.
func renderAnnouncement(session *store.Session, bids []store.Bid) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Bidding open: %s (TH%d)**\n", session.PlayerName, session.TownHallLevel)
	fmt.Fprintf(&b, "Player tag: `%s`\n", session.PlayerTag)
	fmt.Fprintf(&b, "Bidding closes <t:%d:R>.\n", session.BidEndTime.Unix())

	if len(bids) == 0 {
		b.WriteString("\nNo bids yet.")
		return b.String()
	}

	b.WriteString("\nCurrent bids:\n")
	for _, bid := range bids {
		fmt.Fprintf(&b, "- `%s`: %s\n", bid.ClanTag, bid.Amount.StringFixed(1))
	}
	return b.String()
}

// renderResult builds the close-out message for a decided outcome.
func renderResult(session *store.Session, outcome Outcome, escalationRole string) string {
	switch outcome.Kind {
	case NoBids:
		mention := ""
		if escalationRole != "" {
			mention = fmt.Sprintf(" <@&%s>", escalationRole)
		}
		return fmt.Sprintf("Bidding for **%s** closed with no bids.%s Please place this recruit manually.",
			session.PlayerName, mention)
	case SingleBid:
		return fmt.Sprintf("Bidding for **%s** closed. `%s` wins as the sole bidder and pays nothing.",
			session.PlayerName, outcome.Winner)
	default:
		tie := ""
		if outcome.TieBreak {
			tie = fmt.Sprintf(" (tie between `%s`, winner drawn at random)",
				strings.Join(outcome.TieCandidates, "`, `"))
		}
		return fmt.Sprintf("Bidding for **%s** closed. `%s` wins for %s points.%s",
			session.PlayerName, outcome.Winner, outcome.Amount.StringFixed(1), tie)
	}
}
