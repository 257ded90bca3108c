package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/gravityease/internal/storage"
)

// parseSessionRecord converts a Redis hash to SessionRecord
func parseSessionRecord(data map[string]string) (*storage.SessionRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	angle, err := strconv.ParseFloat(data["angle"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse angle: %w", err)
	}

	duration, err := strconv.ParseInt(data["duration_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration_seconds: %w", err)
	}

	startedAt, err := time.Parse(time.RFC3339Nano, data["started_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	endedAt, err := time.Parse(time.RFC3339Nano, data["ended_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse ended_at: %w", err)
	}

	return &storage.SessionRecord{
		ID:              data["id"],
		UserID:          data["user_id"],
		Angle:           angle,
		DurationSeconds: duration,
		SessionDate:     data["session_date"],
		SessionTime:     data["session_time"],
		StartedAt:       startedAt,
		EndedAt:         endedAt,
	}, nil
}

// parseDailyAggregate converts a Redis hash to DailyAggregate
func parseDailyAggregate(data map[string]string) (*storage.DailyAggregate, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	total, err := strconv.ParseInt(data["total_duration_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_duration_seconds: %w", err)
	}

	count, err := strconv.ParseInt(data["session_count"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session_count: %w", err)
	}

	weighted, err := strconv.ParseFloat(data["weighted_angle_sum"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse weighted_angle_sum: %w", err)
	}

	return &storage.DailyAggregate{
		Date:                 data["date"],
		UserID:               data["user_id"],
		TotalDurationSeconds: total,
		SessionCount:         count,
		WeightedAngleSum:     weighted,
		AverageAngle:         storage.WeightedAverage(weighted, total),
	}, nil
}

// dateScore maps "2006-01-02" to 20060102 so dates sort numerically.
func dateScore(date string) (float64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(date, "-", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return float64(n), nil
}
