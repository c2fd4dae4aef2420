package discord

import (
	"context"
	"errors"
	"time"

	"smart-secretary/internal/secretary"
	"smart-secretary/pkg/retrylimit"

	"github.com/bwmarrin/discordgo"
)

// fallbackRetryAfter is used when a 429 carries no retry-after.
const fallbackRetryAfter = time.Second

func (b *Bot) SendTyping(ctx context.Context, chatID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	err := b.dg.ChannelTyping(chatID, discordgo.WithContext(ctx))
	return translateErr("typing", err, b.limiter)
}

// SendReply posts text into chatID as a reply to replyTo, without link previews or pings.
func (b *Bot) SendReply(ctx context.Context, chatID, replyTo, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.dg.ChannelMessageSendComplex(chatID, replyMessage(chatID, replyTo, text), discordgo.WithContext(ctx))
	return translateErr("send reply", err, b.limiter)
}

func replyMessage(chatID, replyTo, text string) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{
		Content:         text,
		Flags:           discordgo.MessageFlagsSuppressEmbeds,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if replyTo != "" {
		msg.Reference = &discordgo.MessageReference{
			MessageID: replyTo,
			ChannelID: chatID,
		}
	}
	return msg
}

// translateErr maps discordgo errors onto the engine's error types and feeds the limiter.
func translateErr(op string, err error, lim *retrylimit.AdaptiveLimiter) error {
	if err == nil {
		lim.Success()
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if retryAfter, ok := rateLimitRetryAfter(err); ok {
		if retryAfter <= 0 {
			retryAfter = fallbackRetryAfter
		}
		lim.RateLimited(retryAfter)
		return &secretary.RateLimitedError{Op: op, RetryAfter: retryAfter}
	}
	return &secretary.TransportError{Op: op, Err: err}
}

func rateLimitRetryAfter(err error) (time.Duration, bool) {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) && rl != nil {
		return retryAfterOf(rl.RateLimit), true
	}
	return 0, false
}

func retryAfterOf(rl *discordgo.RateLimit) time.Duration {
	if rl == nil || rl.TooManyRequests == nil {
		return 0
	}
	return rl.TooManyRequests.RetryAfter
}
