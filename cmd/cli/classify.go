package main

import (
	"fmt"
	"time"

	"smart-secretary/internal/config"
	"smart-secretary/internal/presence"

	"github.com/spf13/cobra"
)

func newClassifyCmd(opts *cliOptions) *cobra.Command {
	var (
		lastSeen  string
		threshold string
	)

	cmd := &cobra.Command{
		Use:   "classify <status>",
		Short: "Show whether a presence status counts as reachable",
		Long: "classify runs the reachability rule against a status: online, idle, offline or unknown.\n" +
			"--last-seen takes an RFC 3339 time or a duration meaning that long ago.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := presence.ParseKind(args[0])
			if err != nil {
				return err
			}

			cfg, err := opts.settings()
			if err != nil {
				return err
			}
			limit := cfg.OnlineThreshold.Duration()
			if threshold != "" {
				d, err := parseDuration(threshold)
				if err != nil {
					return fmt.Errorf("--threshold: %w", err)
				}
				limit = d
			}

			now := time.Now()
			sig := presence.Signal{Kind: kind}
			if lastSeen != "" {
				at, err := parseLastSeen(lastSeen, now)
				if err != nil {
					return fmt.Errorf("--last-seen: %w", err)
				}
				sig.LastSeen = &at
			}

			verdict := "unreachable"
			if presence.Classify(sig, limit, now) {
				verdict = "reachable"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (threshold %s)\n", sig, verdict, limit)
			return err
		},
	}
	cmd.Flags().StringVar(&lastSeen, "last-seen", "", "when the owner was last seen")
	cmd.Flags().StringVar(&threshold, "threshold", "", "online threshold (defaults to ONLINE_THRESHOLD)")
	return cmd
}

func parseLastSeen(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want an RFC 3339 time or a duration, got %q", s)
	}
	return now.Add(-d), nil
}

func parseDuration(s string) (time.Duration, error) {
	var d config.Duration
	if err := d.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return d.Duration(), nil
}
