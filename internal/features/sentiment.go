package features

import (
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"polymarket-pred/pkg/types"
)

// sentimentHalfLife controls how fast older items lose influence: an item
// published 24h ago weighs half as much as one published now.
const sentimentHalfLife = 24 * time.Hour

// positiveWords and negativeWords form a small polarity lexicon tuned to the
// vocabulary of market-moving headlines.
var positiveWords = map[string]bool{
	"win": true, "wins": true, "winning": true, "won": true,
	"surge": true, "surges": true, "rally": true, "rallies": true,
	"gain": true, "gains": true, "rise": true, "rises": true, "rising": true,
	"up": true, "high": true, "record": true, "strong": true, "growth": true,
	"success": true, "successful": true, "approve": true, "approved": true,
	"pass": true, "passes": true, "passed": true, "lead": true, "leads": true,
	"leading": true, "boost": true, "positive": true, "bullish": true,
	"confirm": true, "confirms": true, "confirmed": true, "yes": true,
	"likely": true, "momentum": true, "breakthrough": true, "soar": true,
	"soars": true, "advance": true, "advances": true,
}

var negativeWords = map[string]bool{
	"lose": true, "loses": true, "losing": true, "lost": true, "loss": true,
	"fall": true, "falls": true, "falling": true, "fell": true,
	"drop": true, "drops": true, "dropped": true, "crash": true, "crashes": true,
	"down": true, "low": true, "weak": true, "decline": true, "declines": true,
	"fail": true, "fails": true, "failed": true, "failure": true,
	"reject": true, "rejects": true, "rejected": true, "deny": true,
	"denies": true, "denied": true, "negative": true, "bearish": true,
	"doubt": true, "doubts": true, "unlikely": true, "risk": true,
	"risks": true, "plunge": true, "plunges": true, "slump": true,
	"concern": true, "concerns": true, "no": true, "trail": true,
	"trails": true, "trailing": true, "behind": true,
}

// scoreText returns a polarity score in [-1, 1] for one piece of text.
func scoreText(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}

	var pos, neg int
	for _, w := range words {
		w = strings.Trim(w, ".,!?\"'():;")
		if positiveWords[w] {
			pos++
		} else if negativeWords[w] {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// decayWeight returns the age-decay weight for an item published at t.
func decayWeight(publishedAt, now time.Time) float64 {
	age := now.Sub(publishedAt)
	if age < 0 {
		age = 0
	}
	return math.Exp2(-age.Hours() / sentimentHalfLife.Hours())
}

// sentimentFeatures computes decay-weighted mean sentiment for news and
// social items separately, plus a log-scaled news count. No items means
// neutral 0 sentiment.
func sentimentFeatures(out map[string]float64, newsItems []types.NewsItem, social []types.SocialItem, now time.Time) {
	if len(newsItems) > 0 {
		scores := make([]float64, len(newsItems))
		weights := make([]float64, len(newsItems))
		for i, n := range newsItems {
			scores[i] = scoreText(n.Title + " " + n.Body)
			weights[i] = decayWeight(n.PublishedAt, now)
		}
		out["news_sentiment"] = stat.Mean(scores, weights)
	} else {
		out["news_sentiment"] = 0
	}

	if len(social) > 0 {
		scores := make([]float64, len(social))
		weights := make([]float64, len(social))
		for i, s := range social {
			scores[i] = scoreText(s.Text)
			weights[i] = decayWeight(s.PostedAt, now)
		}
		out["social_sentiment"] = stat.Mean(scores, weights)
	} else {
		out["social_sentiment"] = 0
	}

	out["news_count"] = math.Log1p(float64(len(newsItems)))
}
