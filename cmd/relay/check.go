package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"keyword_relay/internal/config"
	"keyword_relay/internal/rules"
)

// checkCmd fetches one rule table, reports rows that would be skipped and
// optionally shows which rule answers a message.
var checkCmd = &cobra.Command{
	Use:   "check TABLE [TEXT...]",
	Short: "Validate a rule table and test a message against it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Decode(viper.GetViper())
		if err != nil {
			return err
		}

		src, _, err := newSource(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.FetchTimeout)
		defer cancel()

		rows, err := src.FetchRows(ctx, args[0])
		if err != nil {
			return err
		}

		parsed, skipped := rules.Parser{Mode: cfg.MatchMode()}.ParseRows(rows)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d rules loaded, %d rows skipped\n", len(parsed), len(skipped))
		for _, rowErr := range skipped {
			fmt.Fprintf(out, "  skipped %v\n", rowErr)
		}
		for _, r := range parsed {
			if r.Vacuous() {
				fmt.Fprintf(out, "  row %d has no keywords and never matches\n", r.Row)
			}
		}

		if len(args) == 1 {
			return nil
		}

		text := strings.Join(args[1:], " ")
		r, ok := rules.FirstMatch(text, parsed)
		if !ok {
			fmt.Fprintln(out, "no match")
			return nil
		}
		fmt.Fprintf(out, "matched row %d (priority %d): %s\n", r.Row, r.Priority, r.Reply)
		return nil
	},
}
