// Command sensor-sim runs a fleet of virtual soil-moisture sensors that
// publish raw readings to the broker. New sensors can be added at runtime
// via the create command topic, and the uplink can impair traffic (drop,
// jitter, reordering) to exercise the processor's guards.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/sweeney/irrigation-processor/internal/mqtt"
	"github.com/sweeney/irrigation-processor/internal/sim"
)

func main() {
	broker := flag.String("broker", "tcp://127.0.0.1:1883", "MQTT broker address")
	count := flag.Int("sensors", 10, "Number of sensors to start with")
	rate := flag.Float64("rate", 2.0, "Samples per second per sensor")
	seed := flag.Int64("seed", 0, "Random seed (0 picks one from the clock)")
	dropRate := flag.Float64("drop-rate", 0, "Fraction of samples the uplink drops (e.g. 0.03)")
	maxJitter := flag.Duration("max-jitter", 0, "Upper bound on random uplink delay (e.g. 500ms)")
	oooProb := flag.Float64("ooo-prob", 0, "Probability a sample is delayed past its successors (e.g. 0.01)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: parseLevel(*logLevel)}))

	if err := run(log, *broker, *count, *rate, *seed, *dropRate, *maxJitter, *oooProb); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, broker string, count int, rate float64, seed int64, dropRate float64, maxJitter time.Duration, oooProb float64) error {
	if rate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", rate)
	}
	if dropRate < 0 || dropRate >= 1 {
		return fmt.Errorf("drop-rate must be in [0, 1), got %v", dropRate)
	}
	if oooProb < 0 || oooProb >= 1 {
		return fmt.Errorf("ooo-prob must be in [0, 1), got %v", oooProb)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to broker", "broker", broker)
	client, err := mqtt.NewClient(broker, "sensor-sim")
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer client.Close()

	link := sim.NewLink(client.PublishRaw, rand.New(rand.NewSource(seed)), dropRate, maxJitter, oooProb)
	fleet := newFleet(ctx, link, log, rate, seed)

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("zone%02d", i)
		fleet.spawn(id, 0)
	}

	if err := client.SubscribeCommands(fleet.handleCommand); err != nil {
		return fmt.Errorf("subscribe command topics: %w", err)
	}

	log.Info("started", "sensors", count, "rate_hz", rate, "seed", seed)
	if link.Impaired() {
		log.Info("uplink impairment enabled",
			"drop_rate", dropRate,
			"max_jitter", maxJitter,
			"ooo_prob", oooProb,
		)
		go logLinkStats(ctx, log, link)
	}

	<-ctx.Done()
	log.Info("shutting down")
	fleet.wait()
	return nil
}

// logLinkStats reports uplink counters every 5 seconds until ctx ends.
func logLinkStats(ctx context.Context, log *slog.Logger, link *sim.Link) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := link.Stats()
			log.Info("uplink stats",
				"received", s.Received,
				"forwarded", s.Forwarded,
				"dropped", s.Dropped,
				"reordered", s.Reordered,
				"pub_failed", s.PubFailed,
			)
		}
	}
}

// fleet owns the running sensors. Each sensor ticks on its own goroutine;
// the shared state below only tracks which ids exist.
type fleet struct {
	ctx  context.Context
	link *sim.Link
	log  *slog.Logger
	rate float64
	seed int64

	mu      sync.Mutex
	active  map[string]bool
	spawned int64

	wg sync.WaitGroup
}

func newFleet(ctx context.Context, link *sim.Link, log *slog.Logger, rate float64, seed int64) *fleet {
	return &fleet{
		ctx:    ctx,
		link:   link,
		log:    log,
		rate:   rate,
		seed:   seed,
		active: map[string]bool{},
	}
}

// spawn starts a sensor goroutine unless the id is already running. A zero
// baseline means pick one at random in the plausible moisture range.
func (f *fleet) spawn(id string, baseline float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active[id] {
		f.log.Warn("sensor already running", "sensor", id)
		return
	}
	f.active[id] = true
	f.spawned++

	rng := rand.New(rand.NewSource(f.seed + f.spawned))
	if baseline == 0 {
		baseline = 350 + rng.Float64()*300
	}
	s := sim.NewSensor(id, baseline, rng)
	f.log.Info("sensor started", "sensor", id, "baseline", baseline)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.loop(s)
	}()
}

func (f *fleet) loop(s *sim.Sensor) {
	interval := time.Duration(float64(time.Second) / f.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			now := float64(time.Now().UnixNano()) / 1e9
			f.link.Send(s.Tick(interval.Seconds(), now))
		}
	}
}

func (f *fleet) handleCommand(topic string, payload []byte) {
	if topic != mqtt.CommandTopicCreate {
		f.log.Debug("ignoring command", "topic", topic)
		return
	}
	var cmd mqtt.CreateCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		f.log.Warn("malformed create command", "error", err)
		return
	}
	if cmd.SensorID == "" {
		f.mu.Lock()
		cmd.SensorID = fmt.Sprintf("zone%02d", f.spawned)
		f.mu.Unlock()
	}
	f.spawn(cmd.SensorID, cmd.Baseline)
}

func (f *fleet) wait() { f.wg.Wait() }

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
