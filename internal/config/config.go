package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Configuration holds every tunable named in spec.md §6. JSON tags match
// the option names so a config file can be loaded verbatim. Environment
// overrides exist only for lock.waitMs (SAKTI_LOCK_WAIT_MS), lock.leaseMs
// (SAKTI_LOCK_LEASE_MS), kv.endpoint (SAKTI_KV_ENDPOINT) and
// degrade.onKvOutage (SAKTI_DEGRADE_ON_KV_OUTAGE).
type Configuration struct {
	LockWaitMs      int    `json:"lock.waitMs" validate:"required,min=1"`
	LockLeaseMs     int    `json:"lock.leaseMs" validate:"required,min=1"`
	LockPrefix      string `json:"lock.prefix" validate:"required"`

	IdempotencyTTLSeconds int    `json:"idempotency.ttlSeconds" validate:"required,min=1"`
	IdempotencyPrefix     string `json:"idempotency.prefix" validate:"required"`

	KVEndpoint string `json:"kv.endpoint" validate:"required,hostname_port"`

	ValidationLongRunningThresholdMs int `json:"validation.longRunningThreshold" validate:"required,min=1"`

	RecoveryIntervalMs       int `json:"recovery.intervalMs" validate:"required,min=1"`
	RecoveryStallThresholdMs int `json:"recovery.stallThresholdMs" validate:"required,min=1"`
	RecoveryMaxRetries       int `json:"recovery.maxRetries" validate:"required,min=1"`

	DegradeOnKVOutage bool `json:"degrade.onKvOutage"`
}

// Default returns the configuration with every default from spec.md §6.
func Default() Configuration {
	return Configuration{
		LockWaitMs:                       5000,
		LockLeaseMs:                      30000,
		LockPrefix:                       "sakti:lock:",
		IdempotencyTTLSeconds:            7200,
		IdempotencyPrefix:                "sakti:idemp:",
		KVEndpoint:                       "localhost:6379",
		ValidationLongRunningThresholdMs: 30000,
		RecoveryIntervalMs:               60000,
		RecoveryStallThresholdMs:         300000,
		RecoveryMaxRetries:               5,
		DegradeOnKVOutage:                true,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads filename as JSON over the defaults, applies the SAKTI_* env
// overrides listed on Configuration, and validates the result.
func Load(filename string) (Configuration, error) {
	cfg := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return Configuration{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Configuration{}, err
		}
	}
	applyEnvOverrides(&cfg)
	if err := validate.Struct(cfg); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Configuration) {
	if v, ok := os.LookupEnv("SAKTI_LOCK_WAIT_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LockWaitMs = n
		}
	}
	if v, ok := os.LookupEnv("SAKTI_LOCK_LEASE_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LockLeaseMs = n
		}
	}
	if v, ok := os.LookupEnv("SAKTI_KV_ENDPOINT"); ok {
		cfg.KVEndpoint = v
	}
	if v, ok := os.LookupEnv("SAKTI_DEGRADE_ON_KV_OUTAGE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DegradeOnKVOutage = b
		}
	}
}
