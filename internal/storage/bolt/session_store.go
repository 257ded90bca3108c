package bolt

import (
	"context"
	"fmt"

	"github.com/goodtune/gravityease/internal/storage"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	db *bbolt.DB
}

func (s *sessionStore) CommitSession(ctx context.Context, rec storage.SessionRecord) (bool, error) {
	created := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessions := tx.Bucket([]byte(bucketSessions))
		index := tx.Bucket([]byte(bucketSessionIndex))
		daily := tx.Bucket([]byte(bucketDaily))
		if sessions == nil || index == nil || daily == nil {
			return fmt.Errorf("session buckets missing")
		}

		if sessions.Get([]byte(rec.ID)) != nil {
			return nil
		}

		if err := putValue(sessions, rec.ID, rec); err != nil {
			return err
		}
		if err := index.Put([]byte(sessionIndexKey(rec)), []byte(rec.ID)); err != nil {
			return err
		}

		key := dailyKey(rec.UserID, rec.SessionDate)
		agg := storage.DailyAggregate{Date: rec.SessionDate, UserID: rec.UserID}
		if existing := daily.Get([]byte(key)); existing != nil {
			if err := unmarshal(existing, &agg); err != nil {
				return err
			}
		}
		agg.Add(rec)
		if err := putValue(daily, key, agg); err != nil {
			return err
		}

		created = true
		return nil
	})
	return created, err
}

func (s *sessionStore) GetSession(ctx context.Context, id string) (*storage.SessionRecord, error) {
	return getBucketValue[storage.SessionRecord](ctx, s.db, bucketSessions, id)
}

func (s *sessionStore) ListSessions(ctx context.Context, userID, date string) ([]storage.SessionRecord, error) {
	records := make([]storage.SessionRecord, 0)
	return records, s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(bucketSessionIndex))
		sessions := tx.Bucket([]byte(bucketSessions))
		if index == nil || sessions == nil {
			return nil
		}
		return reversePrefix(index, userID+"/"+date+"/", func(_, id []byte) (bool, error) {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			value := sessions.Get(id)
			if value == nil {
				return true, nil
			}
			var rec storage.SessionRecord
			if err := unmarshal(value, &rec); err != nil {
				return false, err
			}
			records = append(records, rec)
			return true, nil
		})
	})
}

func (s *sessionStore) GetDailyAggregate(ctx context.Context, userID, date string) (*storage.DailyAggregate, error) {
	return getBucketValue[storage.DailyAggregate](ctx, s.db, bucketDaily, dailyKey(userID, date))
}

func (s *sessionStore) ListDailyAggregates(ctx context.Context, userID string, limit int) ([]storage.DailyAggregate, error) {
	days := make([]storage.DailyAggregate, 0)
	return days, s.db.View(func(tx *bbolt.Tx) error {
		daily := tx.Bucket([]byte(bucketDaily))
		if daily == nil {
			return nil
		}
		return reversePrefix(daily, userID+"/", func(_, v []byte) (bool, error) {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			var agg storage.DailyAggregate
			if err := unmarshal(v, &agg); err != nil {
				return false, err
			}
			days = append(days, agg)
			return limit <= 0 || len(days) < limit, nil
		})
	})
}

func (s *sessionStore) DeleteSessionsBefore(ctx context.Context, cutoffDate string) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessions := tx.Bucket([]byte(bucketSessions))
		index := tx.Bucket([]byte(bucketSessionIndex))
		daily := tx.Bucket([]byte(bucketDaily))
		if sessions == nil || index == nil || daily == nil {
			return nil
		}

		var expired []storage.SessionRecord
		if err := sessions.ForEach(func(_, v []byte) error {
			var rec storage.SessionRecord
			if err := unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.SessionDate < cutoffDate {
				expired = append(expired, rec)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, rec := range expired {
			if err := sessions.Delete([]byte(rec.ID)); err != nil {
				return err
			}
			if err := index.Delete([]byte(sessionIndexKey(rec))); err != nil {
				return err
			}
			deleted++
		}

		var staleDays [][]byte
		if err := daily.ForEach(func(k, v []byte) error {
			var agg storage.DailyAggregate
			if err := unmarshal(v, &agg); err != nil {
				return err
			}
			if agg.Date < cutoffDate {
				staleDays = append(staleDays, append([]byte{}, k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range staleDays {
			if err := daily.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func sessionIndexKey(rec storage.SessionRecord) string {
	return fmt.Sprintf("%s/%s/%020d/%s", rec.UserID, rec.SessionDate, rec.StartedAt.UnixNano(), rec.ID)
}

func dailyKey(userID, date string) string {
	return fmt.Sprintf("%s/%s", userID, date)
}
