// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads deckd configuration from YAML with environment
// overrides.
package config

import (
	"time"

	"github.com/AleutianAI/AleutianDeck/services/deck/telemetry"
)

// Storage backend names.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the root of deckd.yaml.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	History     HistoryConfig     `yaml:"history"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Sync        SyncConfig        `yaml:"sync"`
	Logging     LoggingConfig     `yaml:"logging"`
	Auth        AuthConfig        `yaml:"auth"`
	Telemetry   telemetry.Config  `yaml:"telemetry"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	// GinMode is "debug", "release" or "test".
	GinMode string `yaml:"gin_mode" validate:"oneof=debug release test"`
	// AllowedOrigins restricts websocket upgrades. Empty allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StorageConfig struct {
	Backend  string         `yaml:"backend" validate:"oneof=memory badger postgres redis"`
	Badger   BadgerConfig   `yaml:"badger"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

type BadgerConfig struct {
	Path       string        `yaml:"path"`
	InMemory   bool          `yaml:"in_memory"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// HistoryConfig bounds the undo stack. MaxSize 0 means unbounded.
type HistoryConfig struct {
	MaxSize int `yaml:"max_size" validate:"gte=0"`
}

// PersistenceConfig drives the debounced save of each document.
type PersistenceConfig struct {
	Wait       time.Duration `yaml:"wait" validate:"gt=0"`
	MaxWait    time.Duration `yaml:"max_wait" validate:"gte=0"`
	RunTimeout time.Duration `yaml:"run_timeout" validate:"gt=0"`
}

type SyncConfig struct {
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" validate:"gt=0"`
	// Buffer is the per-subscriber event queue length. A subscriber whose
	// queue fills is dropped.
	Buffer int `yaml:"buffer" validate:"min=1"`
}

// AuthConfig lists bearer tokens. With no tokens every request runs as
// a local admin.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens" validate:"dive"`
}

type TokenConfig struct {
	Token  string   `yaml:"token" validate:"required"`
	UserID string   `yaml:"user_id" validate:"required"`
	Email  string   `yaml:"email"`
	Roles  []string `yaml:"roles" validate:"min=1,dive,oneof=admin editor viewer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
	Dir    string `yaml:"dir"`
}

// DefaultConfig returns a configuration that runs locally with an
// on-disk Badger store under ./data.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            12220,
			ShutdownTimeout: 15 * time.Second,
			GinMode:         "release",
		},
		Storage: StorageConfig{
			Backend: BackendBadger,
			Badger: BadgerConfig{
				Path:       "./data/decks",
				SyncWrites: true,
				GCInterval: 5 * time.Minute,
			},
			Redis: RedisConfig{Addr: "localhost:6379"},
		},
		History: HistoryConfig{MaxSize: 100},
		Persistence: PersistenceConfig{
			Wait:       time.Second,
			MaxWait:    10 * time.Second,
			RunTimeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			KeepaliveInterval: 15 * time.Second,
			Buffer:            64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}
