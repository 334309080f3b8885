package bot

import (
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/kingsalliance/bidbot/internal/store"
)

// Roles resolves a guild member's leader roles to clan tags by matching
// against each clan's configured leader role.
type Roles struct {
	session *discordgo.Session
	guildID string
	clans   store.ClanRepository
}

// NewRoles returns a Roles resolver.
func NewRoles(session *discordgo.Session, guildID string, clans store.ClanRepository) *Roles {
	return &Roles{session: session, guildID: guildID, clans: clans}
}

func (r *Roles) ClanTags(ctx context.Context, userID string) ([]string, error) {
	member, err := r.session.GuildMember(r.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("looking up guild member: %w", err)
	}

	clans, err := r.clans.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing clans: %w", err)
	}

	var tags []string
	for _, clan := range clans {
		if clan.LeaderRoleID != "" && slices.Contains(member.Roles, clan.LeaderRoleID) {
			tags = append(tags, clan.Tag)
		}
	}
	return tags, nil
}
