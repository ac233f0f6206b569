package cache

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr != "localhost:6379" {
		t.Errorf("Addr = %v, want %v", cfg.Addr, "localhost:6379")
	}
	if cfg.DB != 0 {
		t.Errorf("DB = %v, want %v", cfg.DB, 0)
	}
	if cfg.PoolSize != 10 {
		t.Errorf("PoolSize = %v, want %v", cfg.PoolSize, 10)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %v, want %v", cfg.MaxRetries, 3)
	}
	if cfg.ReadTimeout != 3*time.Second {
		t.Errorf("ReadTimeout = %v, want %v", cfg.ReadTimeout, 3*time.Second)
	}
}

func TestClient_PrefixedKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{"no prefix", "", "experiment:abc", "experiment:abc"},
		{"with prefix", "lumen", "experiment:abc", "lumen:experiment:abc"},
		{"empty key with prefix", "lumen", "", "lumen:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{keyPrefix: tt.prefix}
			if got := c.prefixedKey(tt.key); got != tt.want {
				t.Errorf("prefixedKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestConnect_InvalidAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cfg := DefaultConfig()
	cfg.Addr = "invalid-host-that-does-not-exist:6379"
	cfg.MaxRetries = 0

	_, err := Connect(ctx, cfg)
	if err == nil {
		t.Error("Connect() with invalid address should return error")
	}
}

func TestCacheAside_WithKeyFunc(t *testing.T) {
	ca := NewCacheAside[string](nil, time.Minute)
	ca.WithKeyFunc(func(k string) string { return "experiment:" + k })

	if got := ca.keyFunc("123"); got != "experiment:123" {
		t.Errorf("keyFunc(123) = %v, want experiment:123", got)
	}
}

func TestRateLimiter_New(t *testing.T) {
	rl := NewRateLimiter(nil, "submit", 100, 60)

	if rl.limit != 100 {
		t.Errorf("limit = %v, want %v", rl.limit, 100)
	}
	if rl.windowSecs != 60 {
		t.Errorf("windowSecs = %v, want %v", rl.windowSecs, 60)
	}
	if rl.keyPrefix != "submit" {
		t.Errorf("keyPrefix = %v, want %v", rl.keyPrefix, "submit")
	}
}
