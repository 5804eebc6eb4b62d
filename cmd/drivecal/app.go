package main

import (
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"drivecal/internal/config"
	"drivecal/internal/erp"
	"drivecal/internal/ics"
	appLog "drivecal/internal/log"
	"drivecal/internal/syncer"
)

// app wires the configured sources into a sync service.
type app struct {
	cfg      *config.Config
	erp      *erp.Client
	weeks    *syncer.Service
	registry *prometheus.Registry
}

func newApp(cfg *config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{cfg: cfg, registry: reg}
	var sources []syncer.Source

	if cfg.ERP.Enabled() {
		client, err := erp.NewClient(cfg.ERP, erp.Options{
			Location: loc,
			DumpDir:  filepath.Join(cfg.CacheDir, "erp-dumps"),
		})
		if err != nil {
			return nil, err
		}
		a.erp = client
		sources = append(sources, client)
	} else {
		appLog.Warn("ERP base_url not configured; memo writes disabled")
	}

	fetcher := ics.NewFetcher(filepath.Join(cfg.CacheDir, "ics"), nil)
	for _, b := range cfg.Booking {
		if b.URL == "" {
			continue
		}
		sources = append(sources, ics.NewFeedSource(fetcher, ics.Feed{ID: b.ID, URL: b.URL, Resource: b.Resource}, loc))
	}

	a.weeks = syncer.NewService(sources, syncer.Options{
		Location:     loc,
		WeekStartsOn: cfg.WeekStartsOn(),
		Prefix:       cfg.Grid.ResourcePrefix,
		Seats:        cfg.Grid.Seats,
		Fallback:     cfg.Grid.FallbackResource,
		Metrics:      syncer.NewMetrics(reg),
	})

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"week_start", cfg.WeekStart,
		"refresh", cfg.RefreshCron,
		"erp", cfg.ERP.Enabled(),
		"booking_count", len(cfg.Booking),
		"source_count", len(sources),
	)
	return a, nil
}

func (a *app) requireERP() (*erp.Client, error) {
	if a.erp == nil {
		return nil, fmt.Errorf("erp.base_url is not set in %s", configPath)
	}
	return a.erp, nil
}

func (a *app) Close() {
	if a.erp != nil {
		a.erp.Close()
	}
}
