// Package presence turns the owner's raw status into a reachable/unreachable answer.
package presence

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the variant of a presence Signal.
type Kind int

const (
	Unknown Kind = iota
	ActiveNow
	RecentlyActive
	Offline
)

func (k Kind) String() string {
	switch k {
	case ActiveNow:
		return "active_now"
	case RecentlyActive:
		return "recently_active"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// ParseKind accepts the String forms plus a few common aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active_now", "active", "online":
		return ActiveNow, nil
	case "recently_active", "recently", "recent", "idle":
		return RecentlyActive, nil
	case "offline":
		return Offline, nil
	case "unknown":
		return Unknown, nil
	default:
		return Unknown, fmt.Errorf("unknown presence kind %q", s)
	}
}

// Signal is the owner's presence as reported by the transport.
// LastSeen is only meaningful for Offline and may be nil.
type Signal struct {
	Kind     Kind
	LastSeen *time.Time
}

// OfflineSince builds an Offline signal with a last-seen time.
func OfflineSince(t time.Time) Signal {
	return Signal{Kind: Offline, LastSeen: &t}
}

func (s Signal) String() string {
	if s.Kind == Offline && s.LastSeen != nil {
		return fmt.Sprintf("offline(last_seen=%s)", s.LastSeen.UTC().Format(time.RFC3339))
	}
	return s.Kind.String()
}

// Classify reports whether the owner counts as reachable at now.
// An offline owner is reachable only if last seen within threshold.
func Classify(sig Signal, threshold time.Duration, now time.Time) bool {
	switch sig.Kind {
	case ActiveNow, RecentlyActive:
		return true
	case Offline:
		if sig.LastSeen == nil {
			return false
		}
		return now.Sub(*sig.LastSeen) <= threshold
	case Unknown:
		return false
	default:
		return false
	}
}
