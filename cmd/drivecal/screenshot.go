package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot <path.png>",
	Short: "Log into the ERP and save a full-page screenshot, for checking selectors.",
	Args:  cobra.ExactArgs(1),
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
		if err := client.Login(cmd.Context()); err != nil {
			return err
		}
		if err := client.Screenshot(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(screenshotCmd)
}
