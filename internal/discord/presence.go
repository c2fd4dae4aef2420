package discord

import (
	"context"
	"errors"
	"sync"
	"time"

	"smart-secretary/internal/presence"
	"smart-secretary/internal/secretary"

	"github.com/bwmarrin/discordgo"
)

var errNoSharedGuild = errors.New("owner shares no guild with the bot")

// lastSeenTracker remembers the last moment the owner was known to be present:
// the latest sighting in a non-offline status, or the moment they went offline.
// Discord itself does not report a last-seen time.
type lastSeenTracker struct {
	mu   sync.Mutex
	prev discordgo.Status
	at   time.Time
	seen bool
	now  func() time.Time
}

func newLastSeenTracker() *lastSeenTracker {
	return &lastSeenTracker{now: time.Now}
}

// Observe records a status seen at the given time. Going offline stamps the
// transition; staying offline leaves the last stamp alone.
func (t *lastSeenTracker) Observe(status discordgo.Status, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasPresent := !isOffline(t.prev)
	t.prev = status
	if isOffline(status) && !wasPresent {
		return
	}
	if !t.seen || at.After(t.at) {
		t.at = at
		t.seen = true
	}
}

func (t *lastSeenTracker) Get() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.at, t.seen
}

func isOffline(status discordgo.Status) bool {
	return status == discordgo.StatusOffline || status == discordgo.StatusInvisible || status == ""
}

// signalFor maps a Discord status onto a presence signal.
func signalFor(status discordgo.Status, lastSeen time.Time, seen bool) presence.Signal {
	switch status {
	case discordgo.StatusOnline, discordgo.StatusDoNotDisturb:
		return presence.Signal{Kind: presence.ActiveNow}
	case discordgo.StatusIdle:
		return presence.Signal{Kind: presence.RecentlyActive}
	case discordgo.StatusOffline, discordgo.StatusInvisible, "":
		if seen {
			return presence.OfflineSince(lastSeen)
		}
		return presence.Signal{Kind: presence.Offline}
	default:
		return presence.Signal{Kind: presence.Unknown}
	}
}

// ProbePresence reads the owner's status from the gateway state. Discord leaves
// offline members out of presence lists, so a guild without an entry means offline.
func (b *Bot) ProbePresence(ctx context.Context, ownerID string) (presence.Signal, error) {
	if err := ctx.Err(); err != nil {
		return presence.Signal{}, &secretary.ProbeError{OwnerID: ownerID, Err: err}
	}
	if b.dg == nil || b.dg.State == nil {
		return presence.Signal{}, &secretary.ProbeError{OwnerID: ownerID, Err: discordgo.ErrNilState}
	}

	status, err := b.ownerStatus(ownerID)
	if err != nil {
		return presence.Signal{}, &secretary.ProbeError{OwnerID: ownerID, Err: err}
	}
	b.lastSeen.Observe(status, b.lastSeen.now())
	at, seen := b.lastSeen.Get()
	return signalFor(status, at, seen), nil
}

// ownerStatus returns the most present status across the candidate guilds.
func (b *Bot) ownerStatus(ownerID string) (discordgo.Status, error) {
	guilds := b.candidateGuilds()
	if len(guilds) == 0 {
		return "", errNoSharedGuild
	}

	best := discordgo.StatusOffline
	for _, gid := range guilds {
		p, err := b.dg.State.Presence(gid, ownerID)
		if err != nil {
			if errors.Is(err, discordgo.ErrStateNotFound) {
				continue
			}
			return "", err
		}
		if rank(p.Status) > rank(best) {
			best = p.Status
		}
	}
	return best, nil
}

func (b *Bot) candidateGuilds() []string {
	if b.cfg.GuildID != "" {
		if _, err := b.dg.State.Guild(b.cfg.GuildID); err != nil {
			return nil
		}
		return []string{b.cfg.GuildID}
	}

	b.dg.State.RLock()
	defer b.dg.State.RUnlock()
	ids := make([]string, 0, len(b.dg.State.Guilds))
	for _, g := range b.dg.State.Guilds {
		ids = append(ids, g.ID)
	}
	return ids
}

func rank(s discordgo.Status) int {
	switch s {
	case discordgo.StatusOnline, discordgo.StatusDoNotDisturb:
		return 3
	case discordgo.StatusIdle:
		return 2
	case discordgo.StatusOffline, discordgo.StatusInvisible, "":
		return 0
	default:
		return 1
	}
}
