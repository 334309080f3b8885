package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Display adapts a Discord session to the engine's message contract.
type Display struct {
	session *discordgo.Session
}

// NewDisplay returns a Display over the given session.
func NewDisplay(session *discordgo.Session) *Display {
	return &Display{session: session}
}

func (d *Display) Post(ctx context.Context, threadID, content string) (string, error) {
	msg, err := d.session.ChannelMessageSend(threadID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return msg.ID, nil
}

func (d *Display) Edit(ctx context.Context, threadID, messageID, content string) error {
	if _, err := d.session.ChannelMessageEdit(threadID, messageID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("editing message: %w", err)
	}
	return nil
}

func (d *Display) Delete(ctx context.Context, threadID, messageID string) error {
	if err := d.session.ChannelMessageDelete(threadID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}
