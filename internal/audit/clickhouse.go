package audit

import (
	"context"
	"fmt"

	"balloon-service/internal/models"
)

// inserter is the subset of client.ClickHouseClient used here.
type inserter interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	InsertStructs(ctx context.Context, query string, rows ...interface{}) error
	Close() error
}

// ClickHouseSink appends one row per event to a MergeTree table.
type ClickHouseSink struct {
	conn  inserter
	table string
}

func NewClickHouseSink(conn inserter, table string) *ClickHouseSink {
	return &ClickHouseSink{conn: conn, table: table}
}

// EnsureTable creates the events table when missing.
func (s *ClickHouseSink) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    event_id String,
    event_time DateTime64(3, 'UTC'),
    event_date Date DEFAULT toDate(event_time),
    user_name String,
    outcome LowCardinality(String),
    requested_status Int32,
    fill_status Int32,
    violation_factor Float64,
    retry_after_ms Int64,
    request_id String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(event_date)
ORDER BY (user_name, event_time)`, s.table)
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create audit table %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseSink) insertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s (event_id, event_time, user_name, outcome, requested_status, fill_status, violation_factor, retry_after_ms, request_id)`, s.table)
}

func (s *ClickHouseSink) Emit(ctx context.Context, ev models.AttemptEvent) error {
	row := ev
	if err := s.conn.InsertStructs(ctx, s.insertQuery(), &row); err != nil {
		return fmt.Errorf("clickhouse audit sink: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
