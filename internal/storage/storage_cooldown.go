package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Entry is one correspondent's row in the cooldown log.
type Entry struct {
	CorrespondentID string
	LastReplyAt     time.Time
	Raw             any
	Malformed       bool
}

// zone-less layouts are read as UTC
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ShouldReply reports whether correspondentID has no entry or its last reply is at
// least one cooldown window old.
func (s *Storage) ShouldReply(ctx context.Context, correspondentID string) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}

	last, ok := s.lastReply(correspondentID)
	if !ok {
		return true, nil
	}
	return s.now().Sub(last) >= s.window, nil
}

// RecordReply upserts the reply time and persists the log before returning.
// Stored times never move backwards.
func (s *Storage) RecordReply(ctx context.Context, correspondentID string, at time.Time) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	if last, ok := s.lastReply(correspondentID); ok && last.After(at) {
		s.log.Debug().
			Str("correspondent", correspondentID).
			Time("stored", last).
			Time("at", at).
			Msg("Keeping newer reply time")
		return nil
	}

	if err := s.ds.Put(correspondentID, formatTimestamp(at)); err != nil {
		s.log.Error().Err(err).Str("correspondent", correspondentID).Msg("Failed to save cooldown log")
		return fmt.Errorf("record reply for %s: %w", correspondentID, err)
	}
	return nil
}

// LastReply returns the stored reply time. Malformed values read as the Unix epoch.
func (s *Storage) LastReply(ctx context.Context, correspondentID string) (time.Time, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return time.Time{}, false, err
	}
	last, ok := s.lastReply(correspondentID)
	return last, ok, nil
}

// Entries lists every row of the log sorted by correspondent id.
func (s *Storage) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	keys := s.ds.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		raw, ok := s.ds.Get(k)
		if !ok {
			continue
		}
		at, err := parseTimestamp(raw)
		out = append(out, Entry{
			CorrespondentID: k,
			LastReplyAt:     at,
			Raw:             raw,
			Malformed:       err != nil,
		})
	}
	return out, nil
}

// Forget removes a correspondent so their next message is eligible again.
func (s *Storage) Forget(ctx context.Context, correspondentID string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.ds.Delete(correspondentID); err != nil {
		return fmt.Errorf("forget %s: %w", correspondentID, err)
	}
	return nil
}

func (s *Storage) lastReply(correspondentID string) (time.Time, bool) {
	raw, ok := s.ds.Get(correspondentID)
	if !ok {
		return time.Time{}, false
	}
	at, err := parseTimestamp(raw)
	if err != nil {
		s.log.Error().Err(err).Str("correspondent", correspondentID).Msg("Failed to parse reply time, assuming epoch")
	}
	return at, true
}

func formatTimestamp(at time.Time) string {
	return at.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp reads epoch seconds or an ISO-8601 string. On error it returns the
// Unix epoch alongside the error.
func parseTimestamp(raw any) (time.Time, error) {
	epoch := time.Unix(0, 0).UTC()

	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return epoch, fmt.Errorf("invalid epoch %q: %w", v.String(), err)
		}
		return fromEpochSeconds(f), nil
	case float64:
		return fromEpochSeconds(v), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return epoch, fmt.Errorf("invalid time string %q", v)
	default:
		return epoch, fmt.Errorf("unsupported time value of type %T", raw)
	}
}

func fromEpochSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
