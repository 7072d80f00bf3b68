// Command edged runs on the premises next to the P1 meter. It polls the
// meter's local API on a fixed cadence, appends every reading to the
// crash-durable spool, and drains the spool to the ingest API over HTTPS
// with retry backoff. A reading is removed from the spool only after the
// server has acknowledged it.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gridpulse/p1-telemetry/internal/config"
	"github.com/gridpulse/p1-telemetry/internal/health"
	"github.com/gridpulse/p1-telemetry/internal/logging"
	"github.com/gridpulse/p1-telemetry/internal/normalize"
	"github.com/gridpulse/p1-telemetry/internal/poller"
	"github.com/gridpulse/p1-telemetry/internal/spool"
	"github.com/gridpulse/p1-telemetry/internal/uploader"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoadEdge()
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	sp, err := spool.Open(cfg.SpoolPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SpoolPath).Msg("failed to open spool")
	}
	defer func() {
		if err := sp.Close(); err != nil {
			log.Warn().Err(err).Msg("spool close failed")
		}
	}()

	up, err := uploader.New(sp, uploader.Options{
		IngestURL:   cfg.IngestURL,
		DeviceToken: cfg.DeviceToken,
		BatchSize:   cfg.BatchSize,
		MaxBackoff:  cfg.MaxBackoff,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid uploader configuration")
	}

	pl := poller.New(cfg.MeterHost, cfg.MeterToken)
	tracker := health.NewTracker(sp, up)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("meter_host", cfg.MeterHost).
		Str("device_id", cfg.DeviceID).
		Dur("poll_interval", cfg.PollInterval).
		Dur("upload_interval", cfg.UploadInterval).
		Msg("edge daemon starting")

	// Seed the health file before any loop starts touching the tracker.
	if cfg.HealthPath != "" {
		tracker.WriteFile(ctx, cfg.HealthPath)
	}

	var wg sync.WaitGroup

	// Optional Prometheus endpoint for the edge collectors.
	if cfg.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := health.ServeMetrics(ctx, cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics listener failed")
			}
		}()
	}

	// Producer: poll the meter and append to the spool. A failed poll or
	// a malformed payload skips the tick; a failed enqueue is the one
	// thing that loses data, so it logs at error level.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			raw, err := pl.Poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("poll failed, skipping tick")
				continue
			}

			sm, err := normalize.Sample(raw, cfg.DeviceID, time.Now().UTC())
			if err != nil {
				log.Warn().Err(err).Msg("unusable measurement, skipping tick")
				continue
			}

			if _, err := sp.Enqueue(ctx, sm); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("failed to spool sample")
			}
		}
	}()

	// Consumer: drain the spool to the ingest API. Backoff and retries
	// live inside Run; the callback feeds the health file.
	wg.Add(1)
	go func() {
		defer wg.Done()
		up.Run(ctx, cfg.UploadInterval, func(ok bool) {
			tracker.RecordUpload(ok)
			if cfg.HealthPath != "" {
				tracker.WriteFile(ctx, cfg.HealthPath)
			}
		})
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining")
	wg.Wait()
	log.Info().Msg("edge daemon stopped")
}
