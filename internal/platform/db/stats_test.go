package db

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestPoolStats_JSONTags(t *testing.T) {
	stats := PoolStats{
		TotalConns:      1,
		IdleConns:       1,
		MaxConns:        4,
		AcquireCount:    50,
		AcquireDuration: "250ms",
		Healthy:         true,
	}

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"total_conns":1`, `"max_conns":4`, `"acquire_duration":"250ms"`, `"healthy":true`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("expected %s in %s", key, data)
		}
	}
}

func TestNewPool_InvalidURL(t *testing.T) {
	_, err := NewPool(context.Background(), PoolConfig{DatabaseURL: "postgres://%zz", MaxConns: 4, MinConns: 1})
	if err == nil {
		t.Fatal("expected error for malformed url")
	}
	if !strings.Contains(err.Error(), "parse database url") {
		t.Errorf("unexpected error: %v", err)
	}
}
