// Command irrigation-processor subscribes to raw soil-moisture telemetry,
// cleans and classifies each reading, and republishes it per sensor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/irrigation-processor/internal/dispatch"
	"github.com/sweeney/irrigation-processor/internal/metrics"
	"github.com/sweeney/irrigation-processor/internal/monitor"
	"github.com/sweeney/irrigation-processor/internal/mqtt"
	"github.com/sweeney/irrigation-processor/internal/pipeline"
	"github.com/sweeney/irrigation-processor/internal/registry"
	"github.com/sweeney/irrigation-processor/internal/status"
	"github.com/sweeney/irrigation-processor/internal/web"
)

func main() {
	broker := flag.String("broker", "tcp://127.0.0.1:1883", "MQTT broker address")
	httpAddr := flag.String("http", ":8080", "HTTP status address (empty to disable)")
	interval := flag.Duration("summary-interval", 5*time.Second, "Health summary period")
	staleTimeout := flag.Duration("stale-timeout", 10*time.Second, "No data for this long flags a sensor STALE")
	evictAfter := flag.Duration("evict-after", 60*time.Second, "Drop idle sensor state after this gap (0 to disable)")
	queueSize := flag.Int("queue-size", 1024, "Dispatch queue capacity")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: parseLevel(*logLevel)}))

	if err := run(log, *broker, *httpAddr, *interval, *staleTimeout, *evictAfter, *queueSize); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, broker, httpAddr string, interval, staleTimeout, evictAfter time.Duration, queueSize int) error {
	startTime := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	met := metrics.New(promReg)
	tracker := status.NewTracker(startTime, status.Config{
		Broker:           broker,
		HTTPAddr:         httpAddr,
		SummaryIntervalS: interval.Seconds(),
		StaleTimeoutS:    staleTimeout.Seconds(),
		EvictAfterS:      evictAfter.Seconds(),
		QueueSize:        queueSize,
	})
	reg := registry.New(pipeline.DefaultConfig(), time.Now)

	log.Info("connecting to broker", "broker", broker)
	client, err := mqtt.NewClient(broker, "irrigation-processor")
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer client.Close()
	tracker.SetMQTTConnected(client.IsConnected())

	disp := dispatch.New(reg, client, log, met, tracker, queueSize)
	if err := client.SubscribeRaw(disp.HandlerFunc()); err != nil {
		return fmt.Errorf("subscribe raw topics: %w", err)
	}

	mon := monitor.New(reg, monitor.Config{
		Interval:     interval,
		StaleTimeout: staleTimeout,
		EvictAfter:   evictAfter,
	}, log, time.Now)
	mon.OnSweep = func(s monitor.Summary) {
		tracker.SetSummary(s, time.Now())
		tracker.SetMQTTConnected(client.IsConnected())
		met.Sensors.Set(float64(reg.Len()))
		met.SensorsByHealth.WithLabelValues("ok").Set(float64(s.OK))
		met.SensorsByHealth.WithLabelValues("noisy").Set(float64(s.Noisy))
		met.SensorsByHealth.WithLabelValues("spiky").Set(float64(s.Spiky))
		met.SensorsByHealth.WithLabelValues("stale").Set(float64(s.Stale))
		met.MeanNoiseScore.Set(s.MeanNoise)
	}

	if httpAddr != "" {
		srv := web.New(httpAddr, tracker, promReg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", httpAddr)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		disp.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()

	log.Info("started",
		"summary_interval", interval,
		"stale_timeout", staleTimeout,
		"evict_after", evictAfter,
		"queue_size", queueSize,
	)

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
