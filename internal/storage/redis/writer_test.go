package redis

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/model"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestWriter_Write(t *testing.T) {
	// 1. Start an in-memory redis
	mr := miniredis.RunT(t)
	w, err := NewWriter(config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "test", TTL: "1h"})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer w.Close()

	// 2. Write a batch
	batch := model.TrafficBatch{
		CycleID:   "c1",
		Router:    "192.168.88.1",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Points: []model.TrafficPoint{
			{Address: "10.0.1.1", Local: true, Counters: model.TrafficCounters{BytesSent: 100, PacketsSent: 1, BytesReceived: 50, PacketsReceived: 1}},
			{Address: "8.8.8.8", Counters: model.TrafficCounters{BytesReceived: 100, PacketsReceived: 1}},
		},
	}
	n, err := w.Write(context.Background(), batch)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 points written, got %d", n)
	}

	// 3. Verify hashes, index and TTL
	key := "test:192.168.88.1:10.0.1.1"
	if got := mr.HGet(key, "bytes_sent"); got != "100" {
		t.Errorf("Expected bytes_sent 100, got %q", got)
	}
	if got := mr.HGet(key, "type"); got != "LAN" {
		t.Errorf("Expected type LAN, got %q", got)
	}
	if got := mr.HGet("test:192.168.88.1:8.8.8.8", "type"); got != "WAN" {
		t.Errorf("Expected type WAN, got %q", got)
	}
	members, err := mr.Members("test:192.168.88.1:addresses")
	if err != nil || len(members) != 2 {
		t.Errorf("Expected 2 indexed addresses, got %v (%v)", members, err)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("Expected 1h TTL, got %s", ttl)
	}

	// 4. A later cycle replaces the counters
	batch.Points = batch.Points[:1]
	batch.Points[0].Counters.BytesSent = 7
	if _, err := w.Write(context.Background(), batch); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}
	if got := mr.HGet(key, "bytes_sent"); got != "7" {
		t.Errorf("Expected bytes_sent 7, got %q", got)
	}
}

func TestWriter_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	w, err := NewWriter(config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer w.Close()

	mr.Close()
	batch := model.TrafficBatch{Router: "r", Timestamp: time.Now(), Points: []model.TrafficPoint{{Address: "10.0.0.1"}}}
	if _, err := w.Write(context.Background(), batch); err == nil {
		t.Error("Expected an error when redis is down")
	}
}
