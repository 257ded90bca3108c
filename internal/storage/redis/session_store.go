package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/gravityease/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type sessionStore struct {
	client *redis.Client
	commit *redis.Script
}

// CommitSession stores a record and updates the daily aggregate atomically
func (s *sessionStore) CommitSession(ctx context.Context, rec storage.SessionRecord) (bool, error) {
	score, err := dateScore(rec.SessionDate)
	if err != nil {
		return false, err
	}

	weighted := decimal.NewFromFloat(rec.Angle).Mul(decimal.NewFromInt(rec.DurationSeconds))

	keys := []string{
		sessionKey(rec.ID),
		dayIndexKey(rec.UserID, rec.SessionDate),
		dailyKey(rec.UserID, rec.SessionDate),
		daysKey(rec.UserID),
		usersKey(),
	}
	args := []interface{}{
		rec.ID,
		rec.UserID,
		strconv.FormatFloat(rec.Angle, 'f', -1, 64),
		rec.DurationSeconds,
		rec.SessionDate,
		rec.SessionTime,
		rec.StartedAt.Format(time.RFC3339Nano),
		rec.EndedAt.Format(time.RFC3339Nano),
		rec.StartedAt.UnixMilli(),
		int64(score),
		weighted.String(),
	}

	created, err := s.commit.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("commit session: %w", err)
	}
	return created == 1, nil
}

// GetSession retrieves a record by ID
func (s *sessionStore) GetSession(ctx context.Context, id string) (*storage.SessionRecord, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseSessionRecord(data)
}

// ListSessions returns one day's records for a user, newest first
func (s *sessionStore) ListSessions(ctx context.Context, userID, date string) ([]storage.SessionRecord, error) {
	ids, err := s.client.ZRevRange(ctx, dayIndexKey(userID, date), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]storage.SessionRecord, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		rec, err := parseSessionRecord(data)
		if err != nil {
			continue
		}
		records = append(records, *rec)
	}

	return records, nil
}

// GetDailyAggregate retrieves one day's rollup for a user
func (s *sessionStore) GetDailyAggregate(ctx context.Context, userID, date string) (*storage.DailyAggregate, error) {
	data, err := s.client.HGetAll(ctx, dailyKey(userID, date)).Result()
	if err != nil {
		return nil, err
	}
	return parseDailyAggregate(data)
}

// ListDailyAggregates returns a user's rollups, newest first
func (s *sessionStore) ListDailyAggregates(ctx context.Context, userID string, limit int) ([]storage.DailyAggregate, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	dates, err := s.client.ZRevRange(ctx, daysKey(userID), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	days := make([]storage.DailyAggregate, 0, len(dates))
	if len(dates) == 0 {
		return days, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(dates))
	for i, date := range dates {
		cmds[i] = pipe.HGetAll(ctx, dailyKey(userID, date))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		agg, err := parseDailyAggregate(data)
		if err != nil {
			continue
		}
		days = append(days, *agg)
	}

	return days, nil
}

// DeleteSessionsBefore removes every user's records and rollups dated before cutoffDate
func (s *sessionStore) DeleteSessionsBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := dateScore(cutoffDate)
	if err != nil {
		return 0, err
	}

	users, err := s.client.SMembers(ctx, usersKey()).Result()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, userID := range users {
		dates, err := s.client.ZRangeByScore(ctx, daysKey(userID), &redis.ZRangeBy{
			Min: "-inf",
			Max: fmt.Sprintf("(%d", int64(cutoff)),
		}).Result()
		if err != nil {
			return deleted, err
		}

		for _, date := range dates {
			ids, err := s.client.ZRange(ctx, dayIndexKey(userID, date), 0, -1).Result()
			if err != nil {
				return deleted, err
			}

			pipe := s.client.TxPipeline()
			for _, id := range ids {
				pipe.Del(ctx, sessionKey(id))
			}
			pipe.Del(ctx, dayIndexKey(userID, date), dailyKey(userID, date))
			pipe.ZRem(ctx, daysKey(userID), date)
			if _, err := pipe.Exec(ctx); err != nil {
				return deleted, err
			}
			deleted += len(ids)
		}
	}

	return deleted, nil
}
