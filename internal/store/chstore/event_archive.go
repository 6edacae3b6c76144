package chstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rediguard/internal/client"
	"rediguard/internal/models"
	"rediguard/internal/store"
	"rediguard/internal/util"
)

const processedEventsTable = "processed_events"

const createTableQuery = `
CREATE TABLE IF NOT EXISTS processed_events (
	user_id     String,
	ip          String,
	location    String,
	event_time  DateTime,
	score       Float64,
	geo_jump_km Float64,
	alerted     UInt8
) ENGINE = MergeTree()
ORDER BY (user_id, event_time)
`

// EventArchive writes processed-event rows to ClickHouse for offline
// analytics. Rows are inserted in batches; the archive is write-mostly and
// only Count reads from it.
type EventArchive struct {
	ch *client.ClickHouseClient
}

func NewEventArchive(ctx context.Context, ch *client.ClickHouseClient) (*EventArchive, error) {
	a := &EventArchive{ch: ch}
	if err := a.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *EventArchive) ensureSchema(ctx context.Context) error {
	if err := a.ch.Exec(ctx, createTableQuery); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	util.Info("Processed events table ready", zap.String("table", processedEventsTable))
	return nil
}

func (a *EventArchive) Archive(ctx context.Context, rows []models.ProcessedEvent) error {
	if len(rows) == 0 {
		return nil
	}

	data := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		alerted := uint8(0)
		if row.Alerted {
			alerted = 1
		}
		data = append(data, []interface{}{
			row.UserID,
			row.IP,
			row.Location,
			row.EventTime,
			row.Score,
			row.GeoJumpKM,
			alerted,
		})
	}

	query := fmt.Sprintf("INSERT INTO %s (user_id, ip, location, event_time, score, geo_jump_km, alerted)", processedEventsTable)
	if err := a.ch.BatchInsert(ctx, query, data); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (a *EventArchive) Count(ctx context.Context) (int64, error) {
	rows, err := a.ch.QueryRows(ctx, fmt.Sprintf("SELECT count() FROM %s", processedEventsTable))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	var count uint64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to scan archive count: %w", err)
		}
	}
	return int64(count), rows.Err()
}

func (a *EventArchive) Clear(ctx context.Context) error {
	if err := a.ch.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE IF EXISTS %s", processedEventsTable)); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}
