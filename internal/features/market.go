package features

import (
	"math"
	"strings"
	"time"

	"polymarket-pred/pkg/types"
)

// categories is the fixed one-hot vocabulary. Unknown categories map to
// cat_other. The list is frozen with the model schema; changing it requires
// retraining.
var categories = []string{
	"politics", "crypto", "sports", "science", "business", "culture",
}

// marketFeatures computes the structural features of the market itself.
// Unknown optional inputs degrade to neutral values: a missing spread is 0,
// missing volume/liquidity are 0 (log1p(0) = 0), a missing resolution date
// reads as 0 days out.
func marketFeatures(out map[string]float64, data types.AggregatedData, now time.Time) {
	m := data.Market

	out["price_yes"] = m.PriceYes

	// Prefer the live midpoint over the page price when the book had one.
	if data.Midpoint != nil {
		out["price_yes"] = *data.Midpoint
	}

	if data.BookSpread != nil {
		out["book_spread"] = *data.BookSpread
	} else {
		out["book_spread"] = 0
	}

	vol := 0.0
	if m.Volume24h != nil {
		vol = *m.Volume24h
	}
	out["log_volume_24h"] = math.Log1p(vol)

	liq := 0.0
	if m.Liquidity != nil {
		liq = *m.Liquidity
	}
	out["log_liquidity"] = math.Log1p(liq)

	days := 0.0
	if m.ResolutionDate != nil {
		days = m.ResolutionDate.Sub(now).Hours() / 24
		if days < 0 {
			days = 0
		}
	}
	out["days_to_resolution"] = days

	cat := strings.ToLower(m.Category)
	matched := false
	for _, c := range categories {
		v := 0.0
		if cat == c {
			v = 1
			matched = true
		}
		out["cat_"+c] = v
	}
	if matched {
		out["cat_other"] = 0
	} else {
		out["cat_other"] = 1
	}
}
