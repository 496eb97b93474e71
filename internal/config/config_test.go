package config

import (
	"testing"
)

func TestLoad_RequiresProducerAddr(t *testing.T) {
	t.Setenv("PRODUCER_ADDR", "")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail without PRODUCER_ADDR")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PRODUCER_ADDR", "localhost:8080")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DB_PATH", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STREAM_BUFFER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ProducerAddr != "localhost:8080" {
		t.Errorf("ProducerAddr = %q, want localhost:8080", cfg.ProducerAddr)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.DBPath != "./telemetry.db" {
		t.Errorf("DBPath = %q, want ./telemetry.db", cfg.DBPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.NATSURL != "" || cfg.RedisAddr != "" {
		t.Error("mirrors should be disabled by default")
	}
	if cfg.StreamBuffer != 0 {
		t.Errorf("StreamBuffer = %d, want 0", cfg.StreamBuffer)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PRODUCER_ADDR", "sim:8080")
	t.Setenv("HTTP_ADDR", ":8000")
	t.Setenv("DB_PATH", "/data/flights.db")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STREAM_BUFFER", "128")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ProducerAddr != "sim:8080" {
		t.Errorf("ProducerAddr = %q, want sim:8080", cfg.ProducerAddr)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want :8000", cfg.HTTPAddr)
	}
	if cfg.DBPath != "/data/flights.db" {
		t.Errorf("DBPath = %q, want /data/flights.db", cfg.DBPath)
	}
	if cfg.NATSURL != "nats://nats:4222" {
		t.Errorf("NATSURL = %q, want nats://nats:4222", cfg.NATSURL)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q, want redis:6379", cfg.RedisAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.StreamBuffer != 128 {
		t.Errorf("StreamBuffer = %d, want 128", cfg.StreamBuffer)
	}
}

func TestLoad_InvalidStreamBuffer(t *testing.T) {
	t.Setenv("PRODUCER_ADDR", "localhost:8080")
	t.Setenv("STREAM_BUFFER", "not-a-number")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail with a non-numeric STREAM_BUFFER")
	}
}
