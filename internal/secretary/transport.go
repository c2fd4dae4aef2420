package secretary

import (
	"context"

	"smart-secretary/internal/presence"
)

// Transport is the slice of the messaging client the engine needs.
type Transport interface {
	// ProbePresence reports the owner's current status. Failures should be *ProbeError.
	ProbePresence(ctx context.Context, ownerID string) (presence.Signal, error)
	SendTyping(ctx context.Context, chatID string) error
	// SendReply answers in chatID, threaded to replyTo when it is not empty.
	SendReply(ctx context.Context, chatID, replyTo, text string) error
}

// ChatKind is how the transport classifies the chat an event came from.
type ChatKind int

const (
	ChatIndividual ChatKind = iota
	ChatGroup
	ChatChannel
	ChatAutomated
)

func (k ChatKind) String() string {
	switch k {
	case ChatIndividual:
		return "individual"
	case ChatGroup:
		return "group"
	case ChatChannel:
		return "channel"
	case ChatAutomated:
		return "automated"
	default:
		return "unknown"
	}
}

// EventKind tells new messages from edits. Both are handled the same way.
type EventKind int

const (
	MessageNew EventKind = iota
	MessageEdited
)

func (k EventKind) String() string {
	if k == MessageEdited {
		return "edited"
	}
	return "new"
}

// Event is one inbound message as seen by the engine.
type Event struct {
	CorrespondentID string
	ChatID          string
	MessageID       string
	Kind            EventKind
	// Consider is false for self-sent messages and for anything but a direct chat with a human.
	Consider bool
}

// ShouldConsider applies the filtering rules owned by the transport adapter.
func ShouldConsider(fromSelf bool, kind ChatKind) bool {
	return !fromSelf && kind == ChatIndividual
}
