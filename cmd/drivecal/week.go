package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"drivecal/internal/grid"
	"drivecal/internal/syncer"
)

var (
	weekDate string
	weekJSON bool
)

var weekCmd = &cobra.Command{
	Use:   "week [--date YYYY-MM-DD] [--json]",
	Short: "Sync one week from every source and print the seat grid.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(conf)
		if err != nil {
			return err
		}
		defer a.Close()

		loc := a.weeks.Location()
		anchor := time.Now().In(loc)
		if weekDate != "" {
			d, err := grid.ParseLocalDate(weekDate, loc)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			anchor = d.Add(12 * time.Hour)
		}

		snap, err := a.weeks.Sync(cmd.Context(), anchor)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if weekJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		return printWeek(out, snap)
	},
}

// printWeek renders the grid as one line per lesson, grouped by day.
func printWeek(w io.Writer, snap *syncer.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "week %s .. %s\n", snap.Week.StartDate, snap.Week.EndDate)
	for _, day := range snap.Grid.Days {
		fmt.Fprintf(tw, "\n%s\t%s\n", day.Date, weekdayName(day.Date))
		n := 0
		for _, col := range day.Columns {
			for _, ev := range col.Events {
				fmt.Fprintf(tw, "  %s-%s\t%s\t%s\n", ev.Start.Format("15:04"), ev.End.Format("15:04"), col.ResourceID, ev.Title)
				n++
			}
		}
		if n == 0 {
			fmt.Fprintln(tw, "  -")
		}
	}
	for _, st := range snap.Sources {
		if st.Error != "" {
			fmt.Fprintf(tw, "\nsource %s failed: %s\n", st.Name, st.Error)
		}
	}
	return tw.Flush()
}

func weekdayName(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

func init() {
	weekCmd.Flags().StringVar(&weekDate, "date", "", "Any date inside the week (default today)")
	weekCmd.Flags().BoolVar(&weekJSON, "json", false, "Print the snapshot as JSON")
	rootCmd.AddCommand(weekCmd)
}
