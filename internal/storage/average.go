package storage

import "github.com/shopspring/decimal"

// averagePlaces bounds the precision of reported average angles.
const averagePlaces = 4

// WeightedAverage returns weightedSum / totalSeconds, or 0 with no duration.
func WeightedAverage(weightedSum float64, totalSeconds int64) float64 {
	if totalSeconds <= 0 {
		return 0
	}
	return decimal.NewFromFloat(weightedSum).
		DivRound(decimal.NewFromInt(totalSeconds), averagePlaces).
		InexactFloat64()
}

// AverageAngle computes the duration-weighted average angle of records:
// sum(angle * duration) / sum(duration), or 0 when there is no duration.
func AverageAngle(records []SessionRecord) float64 {
	sum := decimal.Zero
	var total int64
	for _, rec := range records {
		sum = sum.Add(decimal.NewFromFloat(rec.Angle).Mul(decimal.NewFromInt(rec.DurationSeconds)))
		total += rec.DurationSeconds
	}
	if total <= 0 {
		return 0
	}
	return sum.DivRound(decimal.NewFromInt(total), averagePlaces).InexactFloat64()
}

// Aggregate builds the daily rollup for a set of same-day records.
func Aggregate(userID, date string, records []SessionRecord) DailyAggregate {
	agg := DailyAggregate{Date: date, UserID: userID}
	for _, rec := range records {
		agg.Add(rec)
	}
	return agg
}
