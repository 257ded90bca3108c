package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateFormat and TimeFormat lay out SessionRecord.SessionDate/SessionTime.
const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04:05"
)

var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:gravityease:session-record"))

// SessionRecord is one committed segment.
type SessionRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Angle           float64   `json:"angle"`
	DurationSeconds int64     `json:"duration_seconds"`
	SessionDate     string    `json:"session_date"`
	SessionTime     string    `json:"session_time"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
}

// NewSessionRecord builds a record for a closed segment. Partial seconds are
// dropped. The ID is derived from user, start instant and angle so a retried
// commit maps to the same record.
func NewSessionRecord(userID string, angle float64, start, end time.Time) SessionRecord {
	angle = math.Round(angle*10) / 10
	name := fmt.Sprintf("%s|%d|%.1f", userID, start.UnixMilli(), angle)
	return SessionRecord{
		ID:              uuid.NewSHA1(recordNamespace, []byte(name)).String(),
		UserID:          userID,
		Angle:           angle,
		DurationSeconds: int64(end.Sub(start) / time.Second),
		SessionDate:     start.Format(DateFormat),
		SessionTime:     start.Format(TimeFormat),
		StartedAt:       start,
		EndedAt:         end,
	}
}

// DailyAggregate rolls up one user's committed records for a calendar day.
type DailyAggregate struct {
	Date                 string  `json:"date"`
	UserID               string  `json:"user_id"`
	TotalDurationSeconds int64   `json:"total_duration_seconds"`
	SessionCount         int64   `json:"session_count"`
	WeightedAngleSum     float64 `json:"weighted_angle_sum"`
	AverageAngle         float64 `json:"average_angle"`
}

// Add folds rec into the aggregate.
func (a *DailyAggregate) Add(rec SessionRecord) {
	weighted := decimal.NewFromFloat(a.WeightedAngleSum).
		Add(decimal.NewFromFloat(rec.Angle).Mul(decimal.NewFromInt(rec.DurationSeconds)))
	a.WeightedAngleSum = weighted.InexactFloat64()
	a.TotalDurationSeconds += rec.DurationSeconds
	a.SessionCount++
	a.AverageAngle = WeightedAverage(a.WeightedAngleSum, a.TotalDurationSeconds)
}

// Total returns the aggregate duration.
func (a DailyAggregate) Total() time.Duration {
	return time.Duration(a.TotalDurationSeconds) * time.Second
}
