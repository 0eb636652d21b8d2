// Shipping Manager CoPilot - automation companion service
//
// CoPilot runs the scheduled automations (fuel and CO2 purchases, vessel
// departures, repairs, drydock, co-op bonus, pirate ransom negotiation,
// campaign renewal, price watch) against the Shipping Manager game API
// and pushes live state to browser tabs over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smcopilot/copilot-core/internal/api"
	"github.com/smcopilot/copilot-core/internal/cache"
	"github.com/smcopilot/copilot-core/internal/gameapi"
	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/infrastructure/influxdb"
	"github.com/smcopilot/copilot-core/internal/infrastructure/logging"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
	"github.com/smcopilot/copilot-core/internal/pilot"
	"github.com/smcopilot/copilot-core/internal/scheduler"
	"github.com/smcopilot/copilot-core/internal/session"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main so it can
// return errors and main can handle exit codes consistently.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting sm-copilot",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to InfluxDB (optional telemetry)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Shared components. The hub is both the WebSocket fan-out and the
	// event sender every other component emits through.
	broadcastHub := hub.New(cfg.WebSocket, log)
	lockCoord := locks.New(broadcastHub)
	sessions := session.NewRegistry(cfg, log)
	book := logbook.New(cfg, log, broadcastHub)
	client := gameapi.New(cfg, log)

	store := cache.New(log, broadcastHub)
	store.RegisterLoader(cache.KindVessels, func(ctx context.Context, account string) (any, error) {
		return client.FetchVessels(ctx)
	})
	store.RegisterLoader(cache.KindCampaigns, func(ctx context.Context, account string) (any, error) {
		return client.FetchCampaigns(ctx)
	})

	// Telemetry sink for the runner and pilots. Disabled influx means the
	// no-op sink; pilots never check the toggle themselves.
	var metrics pilot.Telemetry = pilot.NopTelemetry{}
	if influxClient != nil {
		metrics = influxClient
	}

	runner := pilot.NewRunner(cfg, log, sessions, lockCoord, store, client, broadcastHub, book, metrics)

	// Scheduled automations. Slot-aligned tasks follow the 30-minute
	// price boundaries; interval tasks align to UTC midnight.
	sched := scheduler.New(cfg, log, runner)
	sched.Register(pilot.NewPriceWatchPilot(), scheduler.SlotAligned{})
	sched.Register(pilot.NewFuelPilot(), scheduler.SlotAligned{})
	sched.Register(pilot.NewCO2Pilot(), scheduler.SlotAligned{})
	sched.Register(pilot.NewDepartPilot(), scheduler.Every{Interval: 30 * time.Minute})
	sched.Register(pilot.NewRepairPilot(), scheduler.Every{Interval: 3 * time.Hour})
	sched.Register(pilot.NewDrydockPilot(), scheduler.Every{Interval: 6 * time.Hour})
	sched.Register(pilot.NewCoopPilot(), scheduler.Every{Interval: 6 * time.Hour})
	sched.Register(pilot.NewRansomPilot(), scheduler.Every{Interval: time.Hour})
	sched.Register(pilot.NewCampaignPilot(), scheduler.Every{Interval: 3 * time.Hour})

	server := api.New(cfg, log, broadcastHub, lockCoord, book, sessions, runner, sched, version)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		broadcastHub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		book.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	log.Info("initialisation complete",
		"addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"account", cfg.Account.ID,
	)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("http server shutdown error", "error", err)
	}

	// Scheduler drains in-flight tasks, then the logbook does its final
	// flush on its own ctx.Done path.
	wg.Wait()

	log.Info("sm-copilot stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses COPILOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("COPILOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
