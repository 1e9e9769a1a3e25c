package redis

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/factory"
	"Go2NetAccounting/internal/model"
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

func init() {
	factory.RegisterWriter("redis", func(cfg *config.Config) (model.Writer, error) {
		return NewWriter(cfg.Storage.Redis)
	})
}

// Writer keeps the latest counters of every address in Redis hashes.
//
//	<prefix>:<router>:<address>   hash of the latest counters
//	<prefix>:<router>:addresses   set of every address seen
type Writer struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewWriter connects to Redis and pings it.
func NewWriter(cfg config.RedisConfig) (*Writer, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis writer requires storage.redis.addr")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Printf("Successfully connected to Redis at %s.", cfg.Addr)

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = config.DefaultRedisKeyPrefix
	}
	return &Writer{
		client: client,
		prefix: prefix,
		ttl:    config.Duration(cfg.TTL, 0),
	}, nil
}

func (w *Writer) Name() string { return "redis" }

// AddressKey returns the hash key holding the counters of address.
func (w *Writer) AddressKey(router, address string) string {
	return fmt.Sprintf("%s:%s:%s", w.prefix, router, address)
}

// IndexKey returns the set key listing every address of router.
func (w *Writer) IndexKey(router string) string {
	return fmt.Sprintf("%s:%s:addresses", w.prefix, router)
}

// Write stores the whole batch in a single MULTI/EXEC transaction.
func (w *Writer) Write(ctx context.Context, batch model.TrafficBatch) (int, error) {
	if len(batch.Points) == 0 {
		return 0, nil
	}

	ts := batch.Timestamp.UTC().Format(time.RFC3339Nano)
	index := w.IndexKey(batch.Router)

	_, err := w.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, p := range batch.Points {
			key := w.AddressKey(batch.Router, p.Address)
			pipe.HSet(ctx, key,
				"type", p.Kind(),
				"cycle_id", batch.CycleID,
				"timestamp", ts,
				"bytes_sent", p.Counters.BytesSent,
				"bytes_received", p.Counters.BytesReceived,
				"packets_sent", p.Counters.PacketsSent,
				"packets_received", p.Counters.PacketsReceived,
			)
			if w.ttl > 0 {
				pipe.Expire(ctx, key, w.ttl)
			}
			pipe.SAdd(ctx, index, p.Address)
		}
		if w.ttl > 0 {
			pipe.Expire(ctx, index, w.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write batch to redis: %w", err)
	}
	return len(batch.Points), nil
}

func (w *Writer) Close() error {
	return w.client.Close()
}
