package query

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/model"
	chstore "Go2NetAccounting/internal/storage/clickhouse"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	DefaultLimit = 10
	MaxLimit     = 1000
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid query request")

// TopTalkersRequest selects the addresses that moved the most bytes in a time range.
type TopTalkersRequest struct {
	Router string
	From   time.Time
	To     time.Time
	Type   string // "LAN", "WAN" or empty for both
	Limit  int
}

// HistoryRequest selects the per-cycle points of one address.
type HistoryRequest struct {
	Router  string
	Address string
	From    time.Time
	To      time.Time
}

// TalkerSummary is the traffic of one address summed over a time range.
type TalkerSummary struct {
	Address         string `json:"address"`
	Type            string `json:"type"`
	BytesSent       uint64 `json:"bytes_sent"`
	BytesReceived   uint64 `json:"bytes_received"`
	PacketsSent     uint64 `json:"packets_sent"`
	PacketsReceived uint64 `json:"packets_received"`
	Cycles          uint64 `json:"cycles"`
}

// HistoryPoint is one stored cycle of an address.
type HistoryPoint struct {
	Timestamp       time.Time `json:"timestamp"`
	Type            string    `json:"type"`
	BytesSent       uint64    `json:"bytes_sent"`
	BytesReceived   uint64    `json:"bytes_received"`
	PacketsSent     uint64    `json:"packets_sent"`
	PacketsReceived uint64    `json:"packets_received"`
}

// Querier defines the interface for querying stored traffic.
type Querier interface {
	TopTalkers(ctx context.Context, req TopTalkersRequest) ([]TalkerSummary, error)
	AddressHistory(ctx context.Context, req HistoryRequest) ([]HistoryPoint, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn  driver.Conn
	table string
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := chstore.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = config.DefaultClickHouseTable
	}
	return &clickhouseQuerier{conn: conn, table: table}, nil
}

// TopTalkers sums traffic per address and returns the largest first.
func (q *clickhouseQuerier) TopTalkers(ctx context.Context, req TopTalkersRequest) ([]TalkerSummary, error) {
	query, args, err := BuildTopTalkers(q.table, req)
	if err != nil {
		return nil, err
	}

	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var summaries []TalkerSummary
	for rows.Next() {
		var s TalkerSummary
		if err := rows.Scan(&s.Address, &s.Type, &s.BytesSent, &s.BytesReceived, &s.PacketsSent, &s.PacketsReceived, &s.Cycles); err != nil {
			return nil, fmt.Errorf("failed to scan top talkers result: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// AddressHistory returns the stored points of an address in time order.
func (q *clickhouseQuerier) AddressHistory(ctx context.Context, req HistoryRequest) ([]HistoryPoint, error) {
	query, args, err := BuildAddressHistory(q.table, req)
	if err != nil {
		return nil, err
	}

	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var points []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.Timestamp, &p.Type, &p.BytesSent, &p.BytesReceived, &p.PacketsSent, &p.PacketsReceived); err != nil {
			return nil, fmt.Errorf("failed to scan address history result: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// BuildTopTalkers renders the top talkers query and its arguments.
func BuildTopTalkers(table string, req TopTalkersRequest) (string, []any, error) {
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 || limit > MaxLimit {
		return "", nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidRequest, MaxLimit)
	}

	where, args, err := timeRange(req.Router, req.From, req.To)
	if err != nil {
		return "", nil, err
	}
	switch req.Type {
	case "":
	case model.KindLAN, model.KindWAN:
		where = append(where, "Type = ?")
		args = append(args, req.Type)
	default:
		return "", nil, fmt.Errorf("%w: type must be LAN or WAN, got %q", ErrInvalidRequest, req.Type)
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			Address,
			any(Type) AS Type,
			SUM(BytesSent) AS TotalBytesSent,
			SUM(BytesReceived) AS TotalBytesReceived,
			SUM(PacketsSent) AS TotalPacketsSent,
			SUM(PacketsReceived) AS TotalPacketsReceived,
			COUNT(*) AS Cycles
		FROM ` + table)
	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	queryBuilder.WriteString(fmt.Sprintf(`
		GROUP BY Address
		ORDER BY TotalBytesSent + TotalBytesReceived DESC
		LIMIT %d`, limit))

	return queryBuilder.String(), args, nil
}

// BuildAddressHistory renders the address history query and its arguments.
func BuildAddressHistory(table string, req HistoryRequest) (string, []any, error) {
	if req.Address == "" {
		return "", nil, fmt.Errorf("%w: address is required", ErrInvalidRequest)
	}
	where, args, err := timeRange(req.Router, req.From, req.To)
	if err != nil {
		return "", nil, err
	}
	where = append(where, "Address = ?")
	args = append(args, req.Address)

	query := `
		SELECT Timestamp, Type, BytesSent, BytesReceived, PacketsSent, PacketsReceived
		FROM ` + table + `
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY Timestamp`
	return query, args, nil
}

func timeRange(router string, from, to time.Time) ([]string, []any, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, nil, fmt.Errorf("%w: 'to' is before 'from'", ErrInvalidRequest)
	}

	var where []string
	var args []any
	if router != "" {
		where = append(where, "Router = ?")
		args = append(args, router)
	}
	if !from.IsZero() {
		where = append(where, "Timestamp >= ?")
		args = append(args, from)
	}
	if !to.IsZero() {
		where = append(where, "Timestamp <= ?")
		args = append(args, to)
	}
	return where, args, nil
}
