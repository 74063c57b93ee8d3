package utils

import (
	"context"
	"testing"
	"time"
)

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestOpenRedis_RejectsNegativeDB(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{Addr: "localhost:6379", DB: -1}); err == nil {
		t.Fatalf("expected error for negative db")
	}
}

func TestRedisConfig_Defaults(t *testing.T) {
	cfg := RedisConfig{Addr: "localhost:6379", DB: 2, ReadTimeout: time.Second}.withDefaults()
	if cfg.PoolSize != 10 || cfg.ReadTimeout != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DialTimeout != 3*time.Second || cfg.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected timeout defaults: %+v", cfg)
	}
	opts := cfg.options()
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 10 {
		t.Fatalf("unexpected client options: %+v", opts)
	}
}
