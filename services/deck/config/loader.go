// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

// Load reads path over DefaultConfig, applies environment overrides and
// validates the result. An empty path or a missing file yields the
// defaults (plus overrides).
//
// # Inputs
//
//   - path: YAML file. Optional.
//
// # Outputs
//
//   - Config: Validated configuration.
//   - error: Read, parse or validation failure.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment:
//
//	DECKD_PORT, DECKD_STORAGE_BACKEND, DECKD_BADGER_PATH,
//	DECKD_POSTGRES_URL, DECKD_REDIS_ADDR, DECKD_LOG_LEVEL,
//	OTEL_EXPORTER_OTLP_ENDPOINT
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DECKD_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DECKD_PORT %q: %v", ErrInvalid, v, err)
		}
		c.Server.Port = port
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"DECKD_STORAGE_BACKEND", &c.Storage.Backend},
		{"DECKD_BADGER_PATH", &c.Storage.Badger.Path},
		{"DECKD_POSTGRES_URL", &c.Storage.Postgres.URL},
		{"DECKD_REDIS_ADDR", &c.Storage.Redis.Addr},
		{"DECKD_LOG_LEVEL", &c.Logging.Level},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		c.Telemetry.OTLPEndpoint = v
		if c.Telemetry.TraceExporter == "none" {
			c.Telemetry.TraceExporter = "otlp"
		}
	}
	return nil
}

// Validate checks struct tags and the rules that span fields.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Persistence.MaxWait > 0 && c.Persistence.MaxWait < c.Persistence.Wait {
		return fmt.Errorf("%w: persistence.max_wait %s is shorter than persistence.wait %s",
			ErrInvalid, c.Persistence.MaxWait, c.Persistence.Wait)
	}
	switch c.Storage.Backend {
	case BackendBadger:
		if !c.Storage.Badger.InMemory && c.Storage.Badger.Path == "" {
			return fmt.Errorf("%w: storage.badger.path is required", ErrInvalid)
		}
	case BackendPostgres:
		if c.Storage.Postgres.URL == "" {
			return fmt.Errorf("%w: storage.postgres.url is required", ErrInvalid)
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("%w: storage.redis.addr is required", ErrInvalid)
		}
	}
	if c.Telemetry.TraceExporter == "otlp" && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("%w: telemetry.otlp_endpoint is required for the otlp exporter", ErrInvalid)
	}
	return nil
}
