package features

import (
	"math"
	"time"
)

// temporalFeatures encodes the cycle time cyclically so midnight sits next to
// 23:00 and Sunday next to Monday in feature space.
func temporalFeatures(out map[string]float64, now time.Time) {
	utc := now.UTC()

	hour := float64(utc.Hour())
	out["hour_sin"] = math.Sin(2 * math.Pi * hour / 24)
	out["hour_cos"] = math.Cos(2 * math.Pi * hour / 24)

	dow := float64(utc.Weekday())
	out["dow_sin"] = math.Sin(2 * math.Pi * dow / 7)
	out["dow_cos"] = math.Cos(2 * math.Pi * dow / 7)
}
