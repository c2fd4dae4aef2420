package discord

import (
	"smart-secretary/internal/secretary"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	// keep the secretary itself from showing up as online
	if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{Status: string(discordgo.StatusInvisible)}); err != nil {
		b.log.Warn().Err(err).Msg("Failed to set bot status to invisible")
	}

	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	b.log.Info().Str("user", name).Int("guilds", len(r.Guilds)).Msg("Discord bot is running")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	b.dispatch(b.eventFor(s, m.Message, secretary.MessageNew))
}

// onMessageUpdate also fires for embed unfurls, which carry no author.
func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	b.dispatch(b.eventFor(s, m.Message, secretary.MessageEdited))
}

func (b *Bot) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	b.observePresence(&p.Presence)
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil {
		return
	}
	b.log.Debug().Str("guild", g.ID).Str("name", g.Name).Msg("Guild available")
	for _, p := range g.Presences {
		b.observePresence(p)
	}
}

func (b *Bot) observePresence(p *discordgo.Presence) {
	if p == nil || p.User == nil || p.User.ID != b.cfg.OwnerID {
		return
	}
	b.lastSeen.Observe(p.Status, b.lastSeen.now())
}

func (b *Bot) eventFor(s *discordgo.Session, m *discordgo.Message, kind secretary.EventKind) secretary.Event {
	fromSelf := false
	if s != nil && s.State != nil && s.State.User != nil {
		fromSelf = m.Author.ID == s.State.User.ID
	}
	chat := chatKind(m, channelType(s, m.ChannelID))

	return secretary.Event{
		CorrespondentID: m.Author.ID,
		ChatID:          m.ChannelID,
		MessageID:       m.ID,
		Kind:            kind,
		Consider:        secretary.ShouldConsider(fromSelf, chat),
	}
}

// chatKind classifies where a message came from. Guild messages are channels;
// bots and webhooks are automated wherever they write.
func chatKind(m *discordgo.Message, ct discordgo.ChannelType) secretary.ChatKind {
	switch {
	case m.WebhookID != "" || (m.Author != nil && (m.Author.Bot || m.Author.System)):
		return secretary.ChatAutomated
	case m.GuildID != "":
		return secretary.ChatChannel
	case ct == discordgo.ChannelTypeGroupDM:
		return secretary.ChatGroup
	default:
		return secretary.ChatIndividual
	}
}

// channelType looks the channel up in state only; DMs not yet cached count as plain DMs.
func channelType(s *discordgo.Session, channelID string) discordgo.ChannelType {
	if s == nil || s.State == nil {
		return discordgo.ChannelTypeDM
	}
	ch, err := s.State.Channel(channelID)
	if err != nil || ch == nil {
		return discordgo.ChannelTypeDM
	}
	return ch.Type
}
