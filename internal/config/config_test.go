package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

const validKeyHex = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"

func TestLoad_Defaults(t *testing.T) {
	cfg, warnings, err := Load(lookupFrom(map[string]string{
		EnvDatabaseURL: "postgres://localhost/db",
		EnvSecretKey:   validKeyHex,
	}))
	require.NoError(t, err)
	assert.Equal(t, DefaultDBChannelName, cfg.DBChannelName)
	assert.Equal(t, DefaultDBQueueName, cfg.DBQueueName)
	assert.Equal(t, DefaultBatchLimit, cfg.BatchLimit)
	assert.Equal(t, DefaultBatchTimeoutMS, cfg.BatchTimeoutMS)
	assert.Equal(t, DefaultHealthcheckInterval, cfg.HealthcheckIntervalMS)
	assert.NotEmpty(t, warnings)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	_, _, err := Load(lookupFrom(map[string]string{
		EnvSecretKey: validKeyHex,
	}))
	require.Error(t, err)
}

func TestLoad_MissingSecretKey(t *testing.T) {
	_, _, err := Load(lookupFrom(map[string]string{
		EnvDatabaseURL: "postgres://localhost/db",
	}))
	require.Error(t, err)
}

func TestLoad_InvalidSecretKeyLength(t *testing.T) {
	_, _, err := Load(lookupFrom(map[string]string{
		EnvDatabaseURL: "postgres://localhost/db",
		EnvSecretKey:   "abcd",
	}))
	require.Error(t, err)
}

func TestLoad_InvalidSecretKeyHex(t *testing.T) {
	bad := "zz" + validKeyHex[2:]
	_, _, err := Load(lookupFrom(map[string]string{
		EnvDatabaseURL: "postgres://localhost/db",
		EnvSecretKey:   bad,
	}))
	require.Error(t, err)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	cfg, warnings, err := Load(lookupFrom(map[string]string{
		EnvDatabaseURL: "postgres://localhost/db",
		EnvSecretKey:   validKeyHex,
		EnvBatchLimit:  "not-a-number",
	}))
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchLimit, cfg.BatchLimit)
	found := false
	for _, w := range warnings {
		if w.Var == EnvBatchLimit {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLoad_TimeoutExceedingHealthcheckIsFatal(t *testing.T) {
	_, _, err := Load(lookupFrom(map[string]string{
		EnvDatabaseURL:         "postgres://localhost/db",
		EnvSecretKey:           validKeyHex,
		EnvBatchTimeout:        "500000",
		EnvHealthcheckInterval: "1000",
	}))
	require.Error(t, err)
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, _, err := Load(lookupFrom(map[string]string{
		EnvDatabaseURL:         "postgres://localhost/db",
		EnvSecretKey:           validKeyHex,
		EnvDBChannelName:       "custom_channel",
		EnvDBQueueName:         "custom_queue",
		EnvBatchLimit:          "25",
		EnvBatchTimeout:        "1000",
		EnvHealthcheckInterval: "2000",
	}))
	require.NoError(t, err)
	assert.Equal(t, "custom_channel", cfg.DBChannelName)
	assert.Equal(t, "custom_queue", cfg.DBQueueName)
	assert.Equal(t, 25, cfg.BatchLimit)
	assert.Equal(t, 1000, cfg.BatchTimeoutMS)
	assert.Equal(t, 2000, cfg.HealthcheckIntervalMS)
	assert.Equal(t, validKeyHex, hexOf(cfg.SigningKey))
}

func hexOf(b [HMACKeySize]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, hexDigits[c>>4], hexDigits[c&0xf])
	}
	return string(out)
}
