package clickhouse

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/factory"
	"Go2NetAccounting/internal/model"
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

const createTableTemplate = `
CREATE TABLE IF NOT EXISTS %s (
    Timestamp       DateTime64(3),
    Router          LowCardinality(String),
    Address         String,
    Type            LowCardinality(String),
    IsWan           UInt8,
    BytesSent       UInt64,
    BytesReceived   UInt64,
    PacketsSent     UInt64,
    PacketsReceived UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Router, Address, Timestamp)
TTL toDateTime(Timestamp) + INTERVAL %d DAY;
`

func init() {
	factory.RegisterWriter("clickhouse", func(cfg *config.Config) (model.Writer, error) {
		return NewWriter(cfg.Storage.ClickHouse)
	})
}

// Writer implements the model.Writer interface for ClickHouse.
type Writer struct {
	conn  driver.Conn
	table string
}

// NewWriter connects to ClickHouse and provisions the traffic table.
func NewWriter(cfg config.ClickHouseConfig) (*Writer, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), CreateTableStatement(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Printf("Successfully connected to ClickHouse and ensured table %s exists.", cfg.Table)

	return &Writer{conn: conn, table: cfg.Table}, nil
}

// CreateTableStatement renders the DDL for the configured table and retention.
func CreateTableStatement(cfg config.ClickHouseConfig) string {
	table := cfg.Table
	if table == "" {
		table = config.DefaultClickHouseTable
	}
	days := cfg.RetentionDays
	if days <= 0 {
		days = config.DefaultRetentionDays
	}
	return fmt.Sprintf(createTableTemplate, table, days)
}

// Connect opens and pings a native ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := ch.Open(&ch.Options{
		Addr: []string{addr},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &ch.Compression{
			Method: ch.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

func (w *Writer) Name() string { return "clickhouse" }

// Write inserts the batch in a single INSERT. The batch is either fully accepted or not at all.
func (w *Writer) Write(ctx context.Context, batch model.TrafficBatch) (int, error) {
	if len(batch.Points) == 0 {
		return 0, nil
	}

	prepared, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+w.table)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range Rows(batch) {
		if err := prepared.Append(row...); err != nil {
			prepared.Abort()
			return 0, fmt.Errorf("failed to append point to batch: %w", err)
		}
	}

	if err := prepared.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	log.WithField("cycle", batch.CycleID).Debugf("Wrote %d points to ClickHouse", len(batch.Points))
	return len(batch.Points), nil
}

// Rows maps a batch onto the column order of the traffic table.
func Rows(batch model.TrafficBatch) [][]any {
	rows := make([][]any, 0, len(batch.Points))
	for _, p := range batch.Points {
		rows = append(rows, []any{
			batch.Timestamp,
			batch.Router,
			p.Address,
			p.Kind(),
			p.IsWAN(),
			p.Counters.BytesSent,
			p.Counters.BytesReceived,
			p.Counters.PacketsSent,
			p.Counters.PacketsReceived,
		})
	}
	return rows
}

func (w *Writer) Close() error {
	return w.conn.Close()
}
