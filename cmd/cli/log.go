package main

import (
	"fmt"
	"time"

	"smart-secretary/internal/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newLogCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the responses log",
	}

	cmd.AddCommand(
		newLogListCmd(opts),
		newLogShowCmd(opts),
		newLogResetCmd(opts),
	)
	return cmd
}

func newLogListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List correspondents with their last automatic reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Entries(cmd.Context())
			if err != nil {
				return err
			}

			stats := store.Stats()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s (%s)\n", stats.FilePath, humanize.Bytes(uint64(stats.Size)))
			_, _ = fmt.Fprintf(out, "correspondents: %s\n", humanize.Comma(int64(stats.Keys)))
			for _, e := range entries {
				_, _ = fmt.Fprintf(out, "%s\t%s\n", e.CorrespondentID, describe(e, store.Window(), time.Now()))
			}
			return nil
		},
	}
}

func newLogShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <correspondent-id>",
		Short: "Show one correspondent's last reply and eligibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			id := args[0]
			at, ok, err := store.LastReply(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: no reply recorded, eligible\n", id)
				return err
			}

			eligible, err := store.ShouldReply(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: last reply %s (%s), %s\n",
				id, at.UTC().Format(time.RFC3339), humanize.Time(at), eligibility(eligible))
			return err
		},
	}
}

func newLogResetCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <correspondent-id>",
		Short: "Forget a correspondent so their next message gets a reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Forget(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: reset\n", args[0])
			return err
		},
	}
}

func describe(e storage.Entry, window time.Duration, now time.Time) string {
	if e.Malformed {
		return fmt.Sprintf("malformed value %v, eligible", e.Raw)
	}
	eligible := now.Sub(e.LastReplyAt) >= window
	return fmt.Sprintf("%s\t%s\t%s", e.LastReplyAt.UTC().Format(time.RFC3339), humanize.RelTime(e.LastReplyAt, now, "ago", "from now"), eligibility(eligible))
}

func eligibility(eligible bool) string {
	if eligible {
		return "eligible"
	}
	return "cooling down"
}
