// Package config defines the fall-sensor command-line flags. Every flag
// takes its default from a FALL_SENSOR_* environment variable when set.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "FALL_SENSOR_"

// Sensor feed kinds.
const (
	SensorMQTT = "mqtt"
	SensorIIO  = "iio"
	SensorNone = "none"
)

// Gateway kinds.
const (
	GatewayMQTT  = "mqtt"
	GatewayKafka = "kafka"
	GatewayLog   = "log"
)

// StoreMemory selects the in-process event store.
const StoreMemory = "memory"

// Config holds daemon configuration.
type Config struct {
	Broker     string
	Prefix     string
	Heartbeat  time.Duration
	HTTPAddr   string
	ModelPath  string
	Threshold  float64
	Cooldown   time.Duration
	WindowSize int
	WindowMode string

	Sensor       string
	IIODevice    string
	DataReadyPin int
	PollInterval time.Duration

	Gateway      string
	SMSTopic     string
	KafkaBrokers []string
	KafkaTopic   string
	GatewayRate  float64
	SendTimeout  time.Duration
	Message      string

	Contacts string // JSON file path or redis:// URL
	Store    string // "memory" or a postgres DSN

	LogLevel  string
	LogFormat string
}

// Parse reads flags from args, falling back to getenv for defaults.
func Parse(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	env := envReader{getenv: getenv}
	fs := flag.NewFlagSet("fall-sensor", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	c := &Config{}
	fs.StringVar(&c.Broker, "broker", env.stringOr("BROKER", "tcp://192.168.1.200:1883"), "MQTT broker address")
	fs.StringVar(&c.Prefix, "prefix", env.stringOr("PREFIX", "home/fall-sensor"), "MQTT topic prefix")
	fs.DurationVar(&c.Heartbeat, "heartbeat", env.durationOr("HEARTBEAT", 15*time.Minute), "Heartbeat interval (0 to disable)")
	fs.StringVar(&c.HTTPAddr, "http", env.stringOr("HTTP", ":80"), "HTTP status address (empty to disable)")
	fs.StringVar(&c.ModelPath, "model", env.stringOr("MODEL", "/usr/share/fall-sensor/model.json"), "Classifier artifact")
	fs.Float64Var(&c.Threshold, "threshold", env.floatOr("THRESHOLD", logic.DefaultThreshold), "Fall probability threshold")
	fs.DurationVar(&c.Cooldown, "cooldown", env.durationOr("COOLDOWN", 30*time.Second), "Suppression interval after a detection")
	fs.IntVar(&c.WindowSize, "window", env.intOr("WINDOW", logic.DefaultWindowSize), "Feature window size (multiple of 3)")
	fs.StringVar(&c.WindowMode, "window-mode", env.stringOr("WINDOW_MODE", string(logic.ModeInterleaved)), "Window composition: interleaved or paired")

	fs.StringVar(&c.Sensor, "sensor", env.stringOr("SENSOR", SensorMQTT), "Sample feed: mqtt, iio or none")
	fs.StringVar(&c.IIODevice, "iio-device", env.stringOr("IIO_DEVICE", "/sys/bus/iio/devices/iio:device0"), "IIO sysfs device directory")
	fs.IntVar(&c.DataReadyPin, "drdy-pin", env.intOr("DRDY_PIN", -1), "BCM pin of the IMU data-ready line (-1 to poll)")
	fs.DurationVar(&c.PollInterval, "iio-poll", env.durationOr("IIO_POLL", 20*time.Millisecond), "IIO polling interval without a data-ready pin")

	fs.StringVar(&c.Gateway, "gateway", env.stringOr("GATEWAY", GatewayMQTT), "Alert gateway: mqtt, kafka or log")
	fs.StringVar(&c.SMSTopic, "sms-topic", env.stringOr("SMS_TOPIC", ""), "SMS bridge topic (default <prefix>/sms/outbox)")
	brokers := fs.String("kafka-brokers", env.stringOr("KAFKA_BROKERS", ""), "Comma-separated Kafka brokers")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", env.stringOr("KAFKA_TOPIC", "fall-sensor.alerts"), "Kafka outbox topic")
	fs.Float64Var(&c.GatewayRate, "gateway-rate", env.floatOr("GATEWAY_RATE", 5), "Gateway sends per second (0 for no limit)")
	fs.DurationVar(&c.SendTimeout, "send-timeout", env.durationOr("SEND_TIMEOUT", 10*time.Second), "Per-recipient send timeout")
	fs.StringVar(&c.Message, "message", env.stringOr("MESSAGE", ""), "Alert text (default built-in message)")

	fs.StringVar(&c.Contacts, "contacts", env.stringOr("CONTACTS", "/etc/fall-sensor/contacts.json"), "Contacts JSON file or redis:// URL")
	fs.StringVar(&c.Store, "store", env.stringOr("STORE", StoreMemory), `Event store: "memory" or a postgres DSN`)

	fs.StringVar(&c.LogLevel, "log-level", env.stringOr("LOG_LEVEL", "info"), "Log level")
	fs.StringVar(&c.LogFormat, "log-format", env.stringOr("LOG_FORMAT", "json"), "Log format: json or console")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if env.err != nil {
		return nil, env.err
	}
	c.KafkaBrokers = splitList(*brokers)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("threshold must be within [0,1]: %v", c.Threshold))
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("cooldown must not be negative: %v", c.Cooldown))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative: %v", c.Heartbeat))
	}
	if c.WindowSize <= 0 || c.WindowSize%logic.AxesPerSample != 0 {
		errs = append(errs, fmt.Errorf("window must be a positive multiple of %d: %d", logic.AxesPerSample, c.WindowSize))
	}
	if mode, err := logic.ParseWindowMode(c.WindowMode); err != nil {
		errs = append(errs, err)
	} else if mode == logic.ModePaired && c.WindowSize != 2*logic.AxesPerSample {
		errs = append(errs, fmt.Errorf("paired windows hold exactly %d values", 2*logic.AxesPerSample))
	}
	switch c.Sensor {
	case SensorMQTT, SensorIIO, SensorNone:
	default:
		errs = append(errs, fmt.Errorf("unsupported sensor: %s", c.Sensor))
	}
	switch c.Gateway {
	case GatewayMQTT, GatewayLog:
	case GatewayKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka gateway requires --kafka-brokers"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported gateway: %s", c.Gateway))
	}
	if c.GatewayRate < 0 {
		errs = append(errs, fmt.Errorf("gateway-rate must not be negative: %v", c.GatewayRate))
	}
	if c.SendTimeout < 0 {
		errs = append(errs, fmt.Errorf("send-timeout must not be negative: %v", c.SendTimeout))
	}
	if c.Store == "" {
		errs = append(errs, errors.New("store must not be empty"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format: %s", c.LogFormat))
	}
	return errors.Join(errs...)
}

// UsesPostgres reports whether Store is a database DSN.
func (c *Config) UsesPostgres() bool {
	return c.Store != StoreMemory
}

// UsesRedisContacts reports whether Contacts is a Redis URL.
func (c *Config) UsesRedisContacts() bool {
	return strings.HasPrefix(c.Contacts, "redis://") || strings.HasPrefix(c.Contacts, "rediss://")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envReader resolves defaults from the environment. The first malformed
// value is kept in err.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) lookup(key string) string {
	if e.getenv == nil {
		return ""
	}
	return e.getenv(EnvPrefix + key)
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s%s=%q: %w", EnvPrefix, key, v, err)
	}
}

func (e *envReader) stringOr(key, def string) string {
	if v := e.lookup(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) durationOr(key string, def time.Duration) time.Duration {
	v := e.lookup(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func (e *envReader) intOr(key string, def int) int {
	v := e.lookup(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *envReader) floatOr(key string, def float64) float64 {
	v := e.lookup(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}
