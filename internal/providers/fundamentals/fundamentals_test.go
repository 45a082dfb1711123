package fundamentals

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleaf/optrader/internal/clientcache"
)

func TestRatingScore_MapsOneAndTwoToBonus(t *testing.T) {
	assert.Equal(t, 15.0, RatingScore(1))
	assert.Equal(t, 10.0, RatingScore(2))
	assert.Equal(t, 0.0, RatingScore(3))
	assert.Equal(t, 0.0, RatingScore(5))
}

func TestGetFundamentals_ServesFromCacheWithoutHTTPClient(t *testing.T) {
	cache, err := clientcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	c := (&Client{apiKey: "test-key", log: zerolog.Nop()}).WithCache(cache)
	want := Data{Symbol: "AAPL", ReturnOnEquity: 0.3, GrossMargin: 0.4, Rating: 1}
	encoded, err := json.Marshal(want)
	require.NoError(t, err)
	require.NoError(t, cache.Set("fundamentals:AAPL", encoded, cacheTTL))

	res := c.GetFundamentals(context.Background(), "AAPL")
	data, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, want, data)
}
