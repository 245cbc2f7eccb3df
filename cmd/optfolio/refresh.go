package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jaewoongo/optfolio/internal/client"
	"github.com/jaewoongo/optfolio/internal/market"
	"github.com/jaewoongo/optfolio/internal/portfolio"
	"github.com/jaewoongo/optfolio/internal/snapshot"
)

// Refresher runs one fetch-and-assemble cycle: pull the market snapshot, the
// wallet's positions and the pool-analysis archive, join quotes onto
// positions per asset and install the result as the current snapshot.
type Refresher struct {
	client   client.Client
	store    *snapshot.Store
	logger   *logrus.Logger
	address  string
	decimals map[string]int
	now      func() time.Time
}

func NewRefresher(c client.Client, store *snapshot.Store, logger *logrus.Logger, address string, decimals map[string]int) *Refresher {
	return &Refresher{
		client:   c,
		store:    store,
		logger:   logger,
		address:  address,
		decimals: decimals,
		now:      time.Now,
	}
}

// RunCycle executes one refresh. The three upstream fetches run in parallel;
// any fetch failure fails the cycle and leaves the previous snapshot in
// place.
func (r *Refresher) RunCycle(ctx context.Context) error {
	start := r.now()

	var (
		marketPayload *client.MarketPayload
		positions     client.PositionsPayload
		pool          *client.PoolAnalysis
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		marketPayload, err = r.client.FetchMarket(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		positions, err = r.client.FetchPositions(gctx, r.address)
		return err
	})
	g.Go(func() error {
		var err error
		pool, err = r.client.FetchPoolAnalysis(gctx, start.UTC().Format("2006-01-02"))
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh fetch: %w", err)
	}

	quotes := market.Flatten(marketPayload.Data.Market)

	assembler := &portfolio.Assembler{
		Quotes:   quotes,
		Decimals: r.decimals,
		Logger:   r.logger,
		Now:      r.now,
	}

	// Assets are independent; assemble them in parallel.
	portfolios := make(map[string]portfolio.Result, len(positions))
	var mu sync.Mutex
	var ag errgroup.Group
	for asset, groups := range positions {
		asset, groups := asset, groups
		ag.Go(func() error {
			result := assembler.Assemble(asset, groups)
			mu.Lock()
			portfolios[asset] = result
			mu.Unlock()
			return nil
		})
	}
	_ = ag.Wait()

	snap := &snapshot.Snapshot{
		RunID:     uuid.New().String(),
		FetchedAt: start.UTC(),
		Quotes:    quotes,
		Indices: market.Indices{
			Futures:      marketPayload.Data.FuturesIndices,
			Spot:         marketPayload.Data.SpotIndices,
			RiskFreeRate: marketPayload.Data.RiskFreeRates,
		},
		Pool: market.PoolStats{
			Assets:        pool.Assets,
			AssetAmounts:  marketPayload.Data.OlpStats.MOlp.AssetAmounts,
			PositionValue: pool.PositionValue,
			Greeks:        marketPayload.Data.OlpStats.MOlp.Greeks,
		},
		Portfolios: portfolios,
	}

	if err := r.store.Swap(snap); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"run_id":   snap.RunID,
		"assets":   len(portfolios),
		"quotes":   len(quotes),
		"duration": r.now().Sub(start).String(),
	}).Info("refresh cycle complete")

	return nil
}
