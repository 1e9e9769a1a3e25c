package postgres

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/factory"
	"Go2NetAccounting/internal/model"
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultBatchSize = 500

func init() {
	factory.RegisterWriter("postgres", func(cfg *config.Config) (model.Writer, error) {
		return NewWriter(cfg.Storage.Postgres)
	})
}

// TrafficRow is one stored point.
type TrafficRow struct {
	Id              uint64    `gorm:"primaryKey;autoIncrement"`
	Timestamp       time.Time `gorm:"index:idx_router_address_ts,priority:3;not null"`
	CycleId         string    `gorm:"size:36;index"`
	Router          string    `gorm:"index:idx_router_address_ts,priority:1;not null"`
	Address         string    `gorm:"index:idx_router_address_ts,priority:2;not null"`
	Type            string    `gorm:"size:3;not null"`
	IsWan           uint8     `gorm:"not null"`
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
}

// TableName matches the ClickHouse table name.
func (TrafficRow) TableName() string {
	return config.DefaultClickHouseTable
}

// Writer stores batches in PostgreSQL through gorm.
type Writer struct {
	db        *gorm.DB
	batchSize int
}

// NewWriter opens the database and migrates the traffic table.
func NewWriter(cfg config.PostgresConfig) (*Writer, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres writer requires storage.postgres.dsn")
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	log.Println("Successfully connected to PostgreSQL and migrated the traffic table.")

	size := cfg.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	return &Writer{db: db, batchSize: size}, nil
}

// migrate creates or updates the traffic table. The pool is closed on failure.
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&TrafficRow{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return fmt.Errorf("failed to migrate %s: %w", TrafficRow{}.TableName(), err)
	}
	return nil
}

func (w *Writer) Name() string { return "postgres" }

// Write inserts all rows in one transaction.
func (w *Writer) Write(ctx context.Context, batch model.TrafficBatch) (int, error) {
	rows := Rows(batch)
	if len(rows) == 0 {
		return 0, nil
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, w.batchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}
	return len(rows), nil
}

// Rows maps a batch onto table rows.
func Rows(batch model.TrafficBatch) []TrafficRow {
	rows := make([]TrafficRow, 0, len(batch.Points))
	for _, p := range batch.Points {
		rows = append(rows, TrafficRow{
			Timestamp:       batch.Timestamp,
			CycleId:         batch.CycleID,
			Router:          batch.Router,
			Address:         p.Address,
			Type:            p.Kind(),
			IsWan:           p.IsWAN(),
			BytesSent:       p.Counters.BytesSent,
			BytesReceived:   p.Counters.BytesReceived,
			PacketsSent:     p.Counters.PacketsSent,
			PacketsReceived: p.Counters.PacketsReceived,
		})
	}
	return rows
}

func (w *Writer) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
