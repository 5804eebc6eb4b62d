package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"drivecal/internal/store"
)

var memoDate string

var memoCmd = &cobra.Command{
	Use:   "memo <event-id> <text> [--date YYYY-MM-DD]",
	Short: "Write a memo onto an ERP booking and journal the attempt.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(conf)
		if err != nil {
			return err
		}
		defer a.Close()

		client, err := a.requireERP()
		if err != nil {
			return err
		}

		journal, err := store.Open(cmd.Context(), conf.DBPath)
		if err != nil {
			return err
		}
		defer journal.Close()

		eventID := args[0]
		text := strings.Join(args[1:], " ")

		writeErr := client.WriteMemo(cmd.Context(), eventID, memoDate, text)
		memo, err := journal.Record(context.WithoutCancel(cmd.Context()), eventID, memoDate, text, writeErr)
		if err != nil {
			return err
		}
		if writeErr != nil {
			return fmt.Errorf("memo %s: %w", memo.ID, writeErr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "memo %s saved on event %s\n", memo.ID, eventID)
		return nil
	},
}

func init() {
	memoCmd.Flags().StringVar(&memoDate, "date", "", "Date of the booking, to page the ERP calendar to it")
	rootCmd.AddCommand(memoCmd)
}
