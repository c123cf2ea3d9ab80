package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-engine/internal/domain"
)

// MetricSample is one recorded pipeline measurement.
type MetricSample struct {
	Channel    domain.Channel
	LatencyMS  int64
	Escalated  bool
	ToolCalls  int
	RecordedAt time.Time
}

// ChannelWindowStats aggregates samples for one channel over a time window.
type ChannelWindowStats struct {
	Channel      domain.Channel `json:"channel"`
	Events       int64          `json:"events"`
	Escalations  int64          `json:"escalations"`
	AvgLatencyMS float64        `json:"avg_latency_ms"`
	MaxLatencyMS int64          `json:"max_latency_ms"`
}

// MetricsRepository persists pipeline measurements for the windowed query
// surface.
type MetricsRepository interface {
	Record(ctx context.Context, sample *MetricSample) error
	Aggregate(ctx context.Context, channel *domain.Channel, from, to time.Time) ([]ChannelWindowStats, error)
}

type metricsRepository struct {
	pool *pgxpool.Pool
}

// NewMetricsRepository instantiates the repository.
func NewMetricsRepository(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepository{pool: pool}
}

func (r *metricsRepository) Record(ctx context.Context, sample *MetricSample) error {
	const query = `
        INSERT INTO pipeline_metrics (channel, latency_ms, escalated, tool_calls, recorded_at)
        VALUES ($1,$2,$3,$4,$5)`
	recordedAt := sample.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, query,
		sample.Channel,
		sample.LatencyMS,
		sample.Escalated,
		sample.ToolCalls,
		recordedAt,
	)
	return err
}

func (r *metricsRepository) Aggregate(ctx context.Context, channel *domain.Channel, from, to time.Time) ([]ChannelWindowStats, error) {
	base := `
        SELECT channel,
               COUNT(*),
               COUNT(*) FILTER (WHERE escalated),
               COALESCE(AVG(latency_ms), 0),
               COALESCE(MAX(latency_ms), 0)
        FROM pipeline_metrics
        WHERE recorded_at >= $1 AND recorded_at < $2`
	args := []any{from, to}
	if channel != nil {
		args = append(args, *channel)
		base += fmt.Sprintf(" AND channel=$%d", len(args))
	}
	base += " GROUP BY channel ORDER BY channel"

	rows, err := r.pool.Query(ctx, base, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ChannelWindowStats
	for rows.Next() {
		var stats ChannelWindowStats
		if err := rows.Scan(
			&stats.Channel,
			&stats.Events,
			&stats.Escalations,
			&stats.AvgLatencyMS,
			&stats.MaxLatencyMS,
		); err != nil {
			return nil, err
		}
		result = append(result, stats)
	}
	return result, rows.Err()
}
