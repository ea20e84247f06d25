package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
)

// DefaultIIODevice is the sysfs directory of the first IIO device.
const DefaultIIODevice = "/sys/bus/iio/devices/iio:device0"

// channel prefixes in the IIO sysfs ABI
var iioChannels = map[logic.Source]string{
	logic.SourceAccelerometer: "in_accel",
	logic.SourceGyroscope:     "in_anglvel",
}

// Trigger paces sample reads. Start calls fire on every data-ready event
// until Stop is called.
type Trigger interface {
	Start(fire func()) error
	Stop() error
}

// IIOConfig configures an IIO feed.
type IIOConfig struct {
	Device       string        // sysfs device directory
	DataReadyPin int           // BCM line of the IMU data-ready output; <0 polls instead
	PollInterval time.Duration // used when DataReadyPin < 0
}

// IIOFeed reads accelerometer and gyroscope channels from a Linux IIO device.
type IIOFeed struct {
	device  string
	trigger Trigger
	logger  zerolog.Logger

	mu       sync.Mutex
	handlers map[logic.Source]Handler
	running  bool
}

// NewIIOFeed creates a feed for cfg. With a data-ready pin the reads are
// paced by GPIO edges; otherwise they are polled.
func NewIIOFeed(cfg IIOConfig) (*IIOFeed, error) {
	if cfg.Device == "" {
		cfg.Device = DefaultIIODevice
	}
	var trig Trigger
	if cfg.DataReadyPin >= 0 {
		t, err := NewDataReadyTrigger(cfg.DataReadyPin)
		if err != nil {
			return nil, fmt.Errorf("data-ready line: %w", err)
		}
		trig = t
	} else {
		interval := cfg.PollInterval
		if interval <= 0 {
			interval = 20 * time.Millisecond
		}
		trig = NewTickerTrigger(interval)
	}
	return NewIIOFeedWithTrigger(cfg.Device, trig), nil
}

// NewIIOFeedWithTrigger creates a feed reading device, paced by trig.
func NewIIOFeedWithTrigger(device string, trig Trigger) *IIOFeed {
	return &IIOFeed{
		device:   device,
		trigger:  trig,
		logger:   logging.WithComponent("sensor"),
		handlers: make(map[logic.Source]Handler),
	}
}

// Subscribe starts delivering samples from source.
func (f *IIOFeed) Subscribe(source logic.Source, h Handler) error {
	prefix, ok := iioChannels[source]
	if !ok {
		return fmt.Errorf("%s: %w", source, ErrSensorUnavailable)
	}
	if _, err := os.Stat(filepath.Join(f.device, prefix+"_x_raw")); err != nil {
		return fmt.Errorf("%s at %s: %w", source, f.device, ErrSensorUnavailable)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[source] = h
	if f.running {
		return nil
	}
	if err := f.trigger.Start(f.fire); err != nil {
		delete(f.handlers, source)
		return fmt.Errorf("start trigger: %w", err)
	}
	f.running = true
	return nil
}

// Unsubscribe drops every handler and stops the trigger. The trigger is
// stopped without holding mu since Stop waits for an in-flight fire.
func (f *IIOFeed) Unsubscribe() error {
	f.mu.Lock()
	f.handlers = make(map[logic.Source]Handler)
	running := f.running
	f.running = false
	f.mu.Unlock()

	if !running {
		return nil
	}
	return f.trigger.Stop()
}

// fire reads every subscribed source once and delivers the samples.
func (f *IIOFeed) fire() {
	now := time.Now()
	f.mu.Lock()
	handlers := make(map[logic.Source]Handler, len(f.handlers))
	for s, h := range f.handlers {
		handlers[s] = h
	}
	f.mu.Unlock()

	for _, source := range Sources {
		h, ok := handlers[source]
		if !ok {
			continue
		}
		axes, err := f.Read(source)
		if err != nil {
			f.logger.Warn().Err(err).Str("source", string(source)).Msg("IIO read failed")
			continue
		}
		h(logic.Sample{Source: source, Axes: axes, Time: now})
	}
}

// Read returns the scaled x, y, z values of source.
func (f *IIOFeed) Read(source logic.Source) ([3]float32, error) {
	var axes [3]float32
	prefix, ok := iioChannels[source]
	if !ok {
		return axes, fmt.Errorf("%s: %w", source, ErrSensorUnavailable)
	}

	scale := 1.0
	if v, err := readFloat(filepath.Join(f.device, prefix+"_scale")); err == nil {
		scale = v
	}

	for i, axis := range []string{"x", "y", "z"} {
		raw, err := readFloat(filepath.Join(f.device, prefix+"_"+axis+"_raw"))
		if err != nil {
			return axes, err
		}
		axes[i] = float32(raw * scale)
	}
	return axes, nil
}

func readFloat(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// TickerTrigger fires at a fixed interval.
type TickerTrigger struct {
	interval time.Duration
	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
}

// NewTickerTrigger creates a polling trigger.
func NewTickerTrigger(interval time.Duration) *TickerTrigger {
	return &TickerTrigger{interval: interval}
}

// Start begins firing on a background goroutine.
func (t *TickerTrigger) Start(fire func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return nil
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fire()
			}
		}
	}(t.stop, t.done)
	return nil
}

// Stop halts firing and waits for the goroutine to exit.
func (t *TickerTrigger) Stop() error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}
