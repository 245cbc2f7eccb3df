package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaewoongo/optfolio/internal/client"
	"github.com/jaewoongo/optfolio/internal/market"
	"github.com/jaewoongo/optfolio/internal/portfolio"
	"github.com/jaewoongo/optfolio/internal/snapshot"
)

type stubClient struct {
	market    *client.MarketPayload
	positions client.PositionsPayload
	pool      *client.PoolAnalysis
	fail      error
	gotDay    string
}

func (s *stubClient) FetchMarket(ctx context.Context) (*client.MarketPayload, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.market, nil
}

func (s *stubClient) FetchPositions(ctx context.Context, address string) (client.PositionsPayload, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.positions, nil
}

func (s *stubClient) FetchPoolAnalysis(ctx context.Context, day string) (*client.PoolAnalysis, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.gotDay = day
	return s.pool, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func stubMarketPayload() *client.MarketPayload {
	payload := &client.MarketPayload{}
	payload.Data.Market = map[string]market.AssetBoard{
		"BTC": {
			Expiries: []int64{1750086400},
			Options: map[string]market.TypedQuotes{
				"1750086400": {
					Call: []market.Quote{{Instrument: "BTC-27JUN25-70000-C", MarkPrice: 15, Delta: 0.5, Available: true}},
				},
			},
		},
	}
	payload.Data.FuturesIndices = map[string]float64{"BTC": 65000}
	payload.Data.SpotIndices = map[string]float64{"BTC": 64950}
	return payload
}

func newTestRefresher(t *testing.T, c client.Client) (*Refresher, *snapshot.Store) {
	t.Helper()
	store, err := snapshot.NewStore(filepath.Join(t.TempDir(), "snapshot.json"))
	require.NoError(t, err)

	r := NewRefresher(c, store, quietLogger(), "0xabc", map[string]int{"BTC": 8, "ETH": 18})
	r.now = func() time.Time { return time.Unix(1750000000, 0) }
	return r, store
}

func TestRunCycleBuildsSnapshot(t *testing.T) {
	stub := &stubClient{
		market: stubMarketPayload(),
		positions: client.PositionsPayload{
			"BTC": {
				{Expiry: "1750086400", SettlePrice: "0", Positions: []portfolio.RawPosition{{
					// Strategy nibble 1 (long call), all other fields zero.
					OptionTokenID:  "100433627766186892221372630771322662657637687111424552206336",
					Length:         "1",
					OptionNames:    "BTC-27JUN25-70000-C",
					Size:           "100000000",
					ExecutionPrice: "10000000000000000000000000000000",
					IsBuy:          true,
				}}},
			},
		},
		pool: &client.PoolAnalysis{
			Assets:        market.PoolAssets{PoolUSD: 1000},
			PositionValue: 42,
		},
	}

	r, store := newTestRefresher(t, stub)
	require.NoError(t, r.RunCycle(context.Background()))

	snap := store.Current()
	require.NotNil(t, snap)
	assert.NotEmpty(t, snap.RunID)
	assert.Equal(t, time.Unix(1750000000, 0).UTC(), snap.FetchedAt)
	assert.Contains(t, snap.Quotes, "BTC-27JUN25-70000-C")
	assert.Equal(t, 65000.0, snap.Indices.Futures["BTC"])
	assert.Equal(t, 1000.0, snap.Pool.Assets.PoolUSD)
	require.Contains(t, snap.Portfolios, "BTC")
}

func TestRunCycleUsesUTCDay(t *testing.T) {
	stub := &stubClient{
		market:    stubMarketPayload(),
		positions: client.PositionsPayload{},
		pool:      &client.PoolAnalysis{},
	}

	r, _ := newTestRefresher(t, stub)
	require.NoError(t, r.RunCycle(context.Background()))

	wantDay := time.Unix(1750000000, 0).UTC().Format("2006-01-02")
	assert.Equal(t, wantDay, stub.gotDay)
}

func TestRunCycleFetchFailureKeepsPreviousSnapshot(t *testing.T) {
	stub := &stubClient{
		market:    stubMarketPayload(),
		positions: client.PositionsPayload{},
		pool:      &client.PoolAnalysis{},
	}

	r, store := newTestRefresher(t, stub)
	require.NoError(t, r.RunCycle(context.Background()))
	previous := store.Current()
	require.NotNil(t, previous)

	stub.fail = errors.New("upstream down")
	err := r.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, previous, store.Current())
}

func TestRunCycleDistinctRunIDs(t *testing.T) {
	stub := &stubClient{
		market:    stubMarketPayload(),
		positions: client.PositionsPayload{},
		pool:      &client.PoolAnalysis{},
	}

	r, store := newTestRefresher(t, stub)
	require.NoError(t, r.RunCycle(context.Background()))
	first := store.Current().RunID
	require.NoError(t, r.RunCycle(context.Background()))
	second := store.Current().RunID

	assert.NotEqual(t, first, second)
}
