// Package bot holds the Discord reply helpers shared by commands and
// middleware.
package bot

import (
	"github.com/bwmarrin/discordgo"
)

// Embed colors.
const (
	ColorOK     = 0x57f287
	ColorWarn   = 0xe67e22
	ColorError  = 0xed4245
	ColorMuted  = 0x99aab5
	ColorInfo   = 0x3498db
	ColorConfig = 0xe67e22
	ColorList   = 0x11806a
)

// --- Interaction responses ---

// RespondEphemeral sends an ephemeral message response to an interaction.
func RespondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// RespondEmbedEphemeral sends an ephemeral embed response to an interaction.
func RespondEmbedEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

// RespondDeferred acknowledges an interaction; the answer follows as a
// followup message visible to the whole channel.
func RespondDeferred(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
}

// RespondDeferredEphemeral acknowledges an interaction ephemerally without an immediate reply.
func RespondDeferredEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

// --- Followup messages ---

// Followup sends a followup message. Visibility follows the deferred response.
func Followup(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: content})
	return err
}

// FollowupEmbed sends an embed followup message.
func FollowupEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	return err
}

// InteractionUser returns the user behind an interaction, guild or DM.
func InteractionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	if i.User != nil {
		return i.User
	}
	return &discordgo.User{ID: "unknown", Username: "Unknown"}
}

// DisplayName prefers the guild nickname, then the global name.
func DisplayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.Nick != "" {
		return i.Member.Nick
	}
	u := InteractionUser(i)
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// GuildName looks the guild up in the session state, falling back to its ID.
func GuildName(s *discordgo.Session, guildID string) string {
	if s != nil && s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil && g.Name != "" {
			return g.Name
		}
	}
	return guildID
}
