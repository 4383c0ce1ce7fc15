package store

import (
	"context"
	"fmt"
	"time"

	"github.com/vrsandeep/collections-go/internal/models"
)

// RecordJobMetric stores one throughput sample.
func (s *Store) RecordJobMetric(ctx context.Context, m models.JobMetric) error {
	query := `INSERT INTO job_metrics (operation_type, record_count, duration_ms, chunk_size, throughput_per_second, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query), string(m.Operation), m.RecordCount, m.Duration.Milliseconds(),
		m.ChunkSize, m.ThroughputPerSec, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record job metric: %w", err)
	}
	return nil
}

// ThroughputStats aggregates recorded samples per operation.
func (s *Store) ThroughputStats(ctx context.Context) ([]models.ThroughputStat, error) {
	query := `
		SELECT operation_type, COUNT(*), AVG(throughput_per_second), SUM(record_count)
		FROM job_metrics
		GROUP BY operation_type
		ORDER BY operation_type
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []models.ThroughputStat{}
	for rows.Next() {
		var (
			st models.ThroughputStat
			op string
		)
		if err := rows.Scan(&op, &st.Runs, &st.AvgThroughput, &st.TotalRecords); err != nil {
			return nil, err
		}
		st.Operation = models.StrategyKind(op)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
