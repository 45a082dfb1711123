package news

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeHeadlines_NoHeadlinesReturnsNeutral(t *testing.T) {
	assert.Equal(t, 50.0, AnalyzeHeadlines(nil))
}

func TestAnalyzeHeadlines_BullishWordsRaiseScore(t *testing.T) {
	headlines := []Headline{
		{Title: "Company beats earnings estimates, shares surge"},
		{Title: "Analysts upgrade stock to outperform"},
	}
	score := AnalyzeHeadlines(headlines)
	assert.Greater(t, score, 50.0)
}

func TestAnalyzeHeadlines_BearishWordsLowerScore(t *testing.T) {
	headlines := []Headline{
		{Title: "Company misses estimates amid investigation"},
		{Title: "Stock downgrade after weak guidance"},
	}
	score := AnalyzeHeadlines(headlines)
	assert.Less(t, score, 50.0)
}

func TestAnalyzeHeadlines_CapsAtFifteenMostRecent(t *testing.T) {
	headlines := make([]Headline, 30)
	for i := range headlines {
		headlines[i] = Headline{Title: "neutral update"}
	}
	score := AnalyzeHeadlines(headlines)
	assert.Equal(t, 50.0, score)
}
