// Package config loads mailroom's configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	EnvDatabaseURL         = "DATABASE_URL"
	EnvSecretKey           = "SECRET_KEY"
	EnvDBChannelName       = "DB_CHANNEL_NAME"
	EnvDBQueueName         = "DB_QUEUE_NAME"
	EnvBatchLimit          = "BATCH_LIMIT"
	EnvBatchTimeout        = "BATCH_TIMEOUT"
	EnvHealthcheckInterval = "HEALTHCHECK_INTERVAL"

	DefaultDBChannelName       = "token_insert"
	DefaultDBQueueName         = "user_action_queue"
	DefaultBatchLimit          = 10
	DefaultBatchTimeoutMS      = 5000
	DefaultHealthcheckInterval = 270000

	// HMACKeySize is the length, in raw bytes, of the decoded signing key.
	HMACKeySize = 32
)

// Config is mailroom's fully resolved configuration.
type Config struct {
	DatabaseURL           string
	SigningKey            [HMACKeySize]byte
	DBChannelName         string
	DBQueueName           string
	BatchLimit            int
	BatchTimeoutMS        int
	HealthcheckIntervalMS int
}

// Warning describes a non-fatal configuration problem: an invalid or
// out-of-range value was supplied and a default was substituted.
type Warning struct {
	Var     string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Var, w.Message)
}

// Lookup resolves an environment variable, following the same contract as
// os.LookupEnv: ("", false) means unset.
type Lookup func(key string) (string, bool)

// Load resolves Config from the environment via lookup, returning any
// non-fatal warnings alongside it. A missing DATABASE_URL, a missing or
// malformed SECRET_KEY, or a BATCH_TIMEOUT greater than HEALTHCHECK_INTERVAL,
// is fatal and reported as the returned error. The DATABASE_URL value itself
// is not parsed here.
func Load(lookup Lookup) (*Config, []Warning, error) {
	var warnings []Warning

	databaseURL, ok := lookup(EnvDatabaseURL)
	if !ok || databaseURL == "" {
		return nil, warnings, fmt.Errorf("config: %s not set", EnvDatabaseURL)
	}

	keyHex, ok := lookup(EnvSecretKey)
	if !ok || keyHex == "" {
		return nil, warnings, fmt.Errorf("config: %s not set", EnvSecretKey)
	}
	key, err := decodeHexKey(keyHex)
	if err != nil {
		return nil, warnings, fmt.Errorf("config: %s: %w", EnvSecretKey, err)
	}

	channel := DefaultDBChannelName
	if v, ok := lookup(EnvDBChannelName); ok && v != "" {
		channel = v
	} else {
		warnings = append(warnings, Warning{EnvDBChannelName, fmt.Sprintf("not set (default=%s)", DefaultDBChannelName)})
	}

	queue := DefaultDBQueueName
	if v, ok := lookup(EnvDBQueueName); ok && v != "" {
		queue = v
	} else {
		warnings = append(warnings, Warning{EnvDBQueueName, fmt.Sprintf("not set (default=%s)", DefaultDBQueueName)})
	}

	batchLimit, w := parseEnvInt(lookup, EnvBatchLimit, DefaultBatchLimit)
	warnings = append(warnings, w...)

	batchTimeout, w := parseEnvInt(lookup, EnvBatchTimeout, DefaultBatchTimeoutMS)
	warnings = append(warnings, w...)

	healthcheckInterval, w := parseEnvInt(lookup, EnvHealthcheckInterval, DefaultHealthcheckInterval)
	warnings = append(warnings, w...)

	if batchTimeout > healthcheckInterval {
		return nil, warnings, fmt.Errorf("config: %s (%dms) must be <= %s (%dms)",
			EnvBatchTimeout, batchTimeout, EnvHealthcheckInterval, healthcheckInterval)
	}

	cfg := &Config{
		DatabaseURL:           databaseURL,
		SigningKey:            key,
		DBChannelName:         channel,
		DBQueueName:           queue,
		BatchLimit:            batchLimit,
		BatchTimeoutMS:        batchTimeout,
		HealthcheckIntervalMS: healthcheckInterval,
	}

	return cfg, warnings, nil
}

// decodeHexKey validates and decodes a 64-character hex string into a
// 32-byte key, mirroring original_source's is_valid_hmac_keyhex + hex_to_bytes.
func decodeHexKey(keyHex string) ([HMACKeySize]byte, error) {
	var out [HMACKeySize]byte

	if len(keyHex) != HMACKeySize*2 {
		return out, fmt.Errorf("must be a %d-character hex string", HMACKeySize*2)
	}

	decoded, err := hex.DecodeString(keyHex)
	if err != nil {
		return out, fmt.Errorf("must be a %d-character hex string: %w", HMACKeySize*2, err)
	}

	copy(out[:], decoded)
	return out, nil
}

// parseEnvInt resolves an integer-valued env var, falling back to
// defaultVal (with a warning) when the var is unset, malformed, or does not
// fit in an int.
func parseEnvInt(lookup Lookup, name string, defaultVal int) (int, []Warning) {
	val, ok := lookup(name)
	if !ok || val == "" {
		return defaultVal, []Warning{{name, fmt.Sprintf("not set (default=%d)", defaultVal)}}
	}

	parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return defaultVal, []Warning{{name, fmt.Sprintf("invalid value %q, using default: %d", val, defaultVal)}}
	}
	if parsed < int64(minInt) || parsed > int64(maxInt) {
		return defaultVal, []Warning{{name, fmt.Sprintf("value %q out of range, using default: %d", val, defaultVal)}}
	}

	return int(parsed), nil
}

const (
	maxInt = int(^uint(0) >> 1)
	minInt = -maxInt - 1
)
