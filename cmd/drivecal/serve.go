package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	appLog "drivecal/internal/log"
	"drivecal/internal/store"
	"drivecal/internal/web"
)

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve [--listen addr]",
	Short: "Serve the week grid API and refresh the current week on the cron schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if listenFlag != "" {
			conf.Listen = listenFlag
		}

		a, err := newApp(conf)
		if err != nil {
			return err
		}
		defer a.Close()

		journal, err := store.Open(ctx, conf.DBPath)
		if err != nil {
			return err
		}
		defer journal.Close()

		loc := a.weeks.Location()
		refresh := func() {
			if _, err := a.weeks.Sync(ctx, time.Now().In(loc)); err != nil {
				appLog.Error("scheduled sync failed", err)
			}
		}

		sched := cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(appLog.CronLogger{}),
			cron.WithChain(cron.SkipIfStillRunning(appLog.CronLogger{})),
		)
		if _, err := sched.AddFunc(conf.RefreshCron, refresh); err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()

		// Warm the current week without delaying the listener.
		go refresh()

		deps := web.Deps{
			Weeks:    a.weeks,
			Journal:  journal,
			Gatherer: a.registry,
		}
		if a.erp != nil {
			deps.Memos = a.erp
		}
		srv := web.NewServer(conf, deps)

		err = web.Serve(ctx, conf.Listen, srv.Handler())
		appLog.Info("drivecal exiting")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.AddCommand(serveCmd)
}
