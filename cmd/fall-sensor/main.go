// Command fall-sensor classifies motion samples and alerts emergency
// contacts when a fall is detected.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/fall-sensor/internal/alert"
	"github.com/sweeney/fall-sensor/internal/config"
	"github.com/sweeney/fall-sensor/internal/contacts"
	"github.com/sweeney/fall-sensor/internal/eventstore"
	"github.com/sweeney/fall-sensor/internal/kafka"
	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/metrics"
	"github.com/sweeney/fall-sensor/internal/mqtt"
	"github.com/sweeney/fall-sensor/internal/sensor"
	"github.com/sweeney/fall-sensor/internal/session"
	"github.com/sweeney/fall-sensor/internal/status"
	"github.com/sweeney/fall-sensor/internal/web"
)

// statusInterval is how often the run loop refreshes the status tracker.
const statusInterval = time.Second

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := logging.WithComponent("main")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()
	topics := mqtt.TopicsFor(cfg.Prefix)

	// Initialize MQTT; connection continues in the background
	publisher := mqtt.NewRealPublisher(mqtt.Options{Broker: cfg.Broker, Prefix: cfg.Prefix})
	defer publisher.Close()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init event store: %w", err)
	}
	defer store.Close()

	directory, err := openContacts(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init contacts: %w", err)
	}
	if c, ok := directory.(io.Closer); ok {
		defer c.Close()
	}

	gateway, err := newGateway(cfg, publisher, topics)
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}
	if c, ok := gateway.(io.Closer); ok {
		defer c.Close()
	}

	feed, err := newFeed(cfg, publisher, topics)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Threshold:   float32(cfg.Threshold),
		CooldownMs:  cfg.Cooldown.Milliseconds(),
		WindowSize:  cfg.WindowSize,
		WindowMode:  cfg.WindowMode,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Sensor:      cfg.Sensor,
		Gateway:     cfg.Gateway,
		Store:       storeKind(cfg),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	m := metrics.Default
	recorder := eventstore.NewRecorder(store, 5*time.Second, m)
	dispatcher := alert.NewDispatcher(gateway, alert.Config{
		Message:     cfg.Message,
		SendTimeout: cfg.SendTimeout,
		Rate:        cfg.GatewayRate,
		Burst:       1,
	}, m)

	sess, err := session.New(session.Config{
		ModelPath:  cfg.ModelPath,
		Threshold:  float32(cfg.Threshold),
		Cooldown:   cfg.Cooldown,
		WindowSize: cfg.WindowSize,
		WindowMode: logic.WindowMode(cfg.WindowMode),
	}, session.Deps{
		Feed:       feed,
		Directory:  directory,
		Dispatcher: dispatcher,
		Recorder:   recorder,
		Announcer:  publisher,
		Tracker:    tracker,
		Metrics:    m,
	})
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	sess.Start()

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(publisher.IsConnected())
	snap := tracker.Snapshot()
	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to publish startup event")
	}

	g, gctx := errgroup.WithContext(ctx)

	var srv *web.Server
	if cfg.HTTPAddr != "" {
		srv = web.New(cfg.HTTPAddr, tracker, sess, recorder, prometheus.DefaultGatherer)
		g.Go(func() error {
			serveStatus(srv, cfg.HTTPAddr, tracker)
			return nil
		})
	}

	logger.Info().
		Str("broker", cfg.Broker).
		Str("sensor", cfg.Sensor).
		Str("gateway", cfg.Gateway).
		Dur("heartbeat", cfg.Heartbeat).
		Msg("started")

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		err := runLoop(sess, publisher, publisher, tracker, cfg.Heartbeat, time.Now, ticker.C, sigCh, gctx.Done())
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}
		return err
	})

	return g.Wait()
}

// serveStatus runs the status server until it is shut down. A server that
// fails is logged and reported on the tracker; monitoring carries on.
func serveStatus(srv *web.Server, addr string, tracker *status.Tracker) {
	logger := logging.WithComponent("main")
	logger.Info().Str("addr", addr).Msg("http status server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		err = fmt.Errorf("http server: %w", err)
		logger.Error().Err(err).Str("addr", addr).Msg("http status server failed, continuing without it")
		tracker.SetError(err)
	}
}

// monitor is the part of the session the run loop drives.
type monitor interface {
	Close()
	CheckHeartbeat(now time.Time, interval time.Duration) *logic.HeartbeatData
}

func runLoop(sess monitor, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, done <-chan struct{}) error {
	logger := logging.WithComponent("main")

	shutdown := func(reason string) {
		sess.Close()
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Retained:  true,
		}
		if tracker != nil {
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
		}
		if err := publisher.PublishSystem(event); err != nil {
			logger.Warn().Err(err).Msg("failed to publish shutdown event")
		} else {
			logger.Info().Msg("published shutdown event")
		}
	}

	for {
		select {
		case s := <-sig:
			logger.Info().Str("signal", s.String()).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case <-done:
			logger.Warn().Msg("supervised task failed, shutting down")
			shutdown("ERROR")
			return nil

		case <-tick:
			t := now()
			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			hb := sess.CheckHeartbeat(t, heartbeat)
			if hb == nil {
				continue
			}
			logger.Info().
				Dur("uptime", hb.Uptime).
				Int("evaluated", hb.Counts.Evaluated).
				Int("detections", hb.Counts.Detections).
				Int("suppressed", hb.Counts.Suppressed).
				Msg("heartbeat")

			hbEvent := mqtt.SystemEvent{
				Timestamp: hb.Timestamp,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				logger.Warn().Err(err).Msg("heartbeat publish error")
			}
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (eventstore.Store, error) {
	if !cfg.UsesPostgres() {
		return eventstore.NewMemoryStore(), nil
	}
	return eventstore.OpenPostgres(ctx, cfg.Store)
}

func storeKind(cfg *config.Config) string {
	if cfg.UsesPostgres() {
		return "postgres"
	}
	return config.StoreMemory
}

func openContacts(ctx context.Context, cfg *config.Config) (contacts.Directory, error) {
	if cfg.UsesRedisContacts() {
		return contacts.OpenRedis(ctx, cfg.Contacts, contacts.DefaultRedisKey)
	}
	return contacts.File{Path: cfg.Contacts}, nil
}

func newGateway(cfg *config.Config, t mqtt.Transport, topics mqtt.Topics) (alert.Gateway, error) {
	switch cfg.Gateway {
	case config.GatewayMQTT:
		topic := cfg.SMSTopic
		if topic == "" {
			topic = topics.SMS
		}
		return mqtt.NewSMSGateway(t, topic), nil
	case config.GatewayKafka:
		return kafka.New(&kafka.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Source:  "fall-sensor",
			Enabled: true,
		}), nil
	case config.GatewayLog:
		return alert.LogGateway{}, nil
	}
	return nil, fmt.Errorf("unsupported gateway %q", cfg.Gateway)
}

func newFeed(cfg *config.Config, t mqtt.Transport, topics mqtt.Topics) (sensor.Feed, error) {
	switch cfg.Sensor {
	case config.SensorMQTT:
		return mqtt.NewSampleFeed(t, topics), nil
	case config.SensorIIO:
		return sensor.NewIIOFeed(sensor.IIOConfig{
			Device:       cfg.IIODevice,
			DataReadyPin: cfg.DataReadyPin,
			PollInterval: cfg.PollInterval,
		})
	case config.SensorNone:
		return sensor.Disabled{}, nil
	}
	return nil, fmt.Errorf("unsupported sensor %q", cfg.Sensor)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
