package config

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseDefaults(t *testing.T) {
	c, err := Parse(nil, noEnv, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 0.8, c.Threshold)
	assert.Equal(t, 30*time.Second, c.Cooldown)
	assert.Equal(t, 6, c.WindowSize)
	assert.Equal(t, "interleaved", c.WindowMode)
	assert.Equal(t, SensorMQTT, c.Sensor)
	assert.Equal(t, GatewayMQTT, c.Gateway)
	assert.Equal(t, StoreMemory, c.Store)
	assert.Equal(t, -1, c.DataReadyPin)
	assert.Equal(t, 15*time.Minute, c.Heartbeat)
	assert.False(t, c.UsesPostgres())
	assert.False(t, c.UsesRedisContacts())
}

func TestParseFlags(t *testing.T) {
	c, err := Parse([]string{
		"--threshold=0.9",
		"--cooldown=1m",
		"--window-mode=paired",
		"--gateway=kafka",
		"--kafka-brokers=k1:9092, k2:9092",
		"--contacts=redis://localhost:6379/0",
		"--store=postgres://fall@localhost/fall?sslmode=disable",
	}, noEnv, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 0.9, c.Threshold)
	assert.Equal(t, time.Minute, c.Cooldown)
	assert.Equal(t, "paired", c.WindowMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.True(t, c.UsesRedisContacts())
	assert.True(t, c.UsesPostgres())
}

func TestParseEnvDefaults(t *testing.T) {
	env := envMap(map[string]string{
		"FALL_SENSOR_COOLDOWN": "45s",
		"FALL_SENSOR_SENSOR":   "iio",
		"FALL_SENSOR_DRDY_PIN": "17",
		"FALL_SENSOR_WINDOW":   "12",
	})

	c, err := Parse(nil, env, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, c.Cooldown)
	assert.Equal(t, SensorIIO, c.Sensor)
	assert.Equal(t, 17, c.DataReadyPin)
	assert.Equal(t, 12, c.WindowSize)

	// Flags win over the environment
	c, err = Parse([]string{"--cooldown=5s"}, env, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.Cooldown)
}

func TestParseBadEnv(t *testing.T) {
	_, err := Parse(nil, envMap(map[string]string{"FALL_SENSOR_THRESHOLD": "high"}), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FALL_SENSOR_THRESHOLD")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"threshold above one", []string{"--threshold=1.5"}},
		{"negative threshold", []string{"--threshold=-0.1"}},
		{"negative cooldown", []string{"--cooldown=-1s"}},
		{"zero window", []string{"--window=0"}},
		{"window not multiple of three", []string{"--window=7"}},
		{"paired with large window", []string{"--window=12", "--window-mode=paired"}},
		{"unknown window mode", []string{"--window-mode=sliding"}},
		{"unknown sensor", []string{"--sensor=bluetooth"}},
		{"unknown gateway", []string{"--gateway=smtp"}},
		{"kafka without brokers", []string{"--gateway=kafka"}},
		{"empty store", []string{"--store="}},
		{"bad log format", []string{"--log-format=xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.args, noEnv, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestValidateBoundaries(t *testing.T) {
	for _, args := range [][]string{
		{"--threshold=0"},
		{"--threshold=1"},
		{"--cooldown=0s"},
		{"--window=3"},
	} {
		_, err := Parse(args, noEnv, io.Discard)
		assert.NoError(t, err, "args %v", args)
	}
}
