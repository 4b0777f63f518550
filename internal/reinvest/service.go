// Package reinvest routes realized trade profit back into the market,
// split between a short-term momentum pick and a long-term hold.
package reinvest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"portfolio-core/internal/monitor"
	"portfolio-core/internal/trade"
	"portfolio-core/pkg/db"
)

var (
	ErrProfitBelowThreshold = errors.New("profit below reinvestment threshold")
	ErrCooldownActive       = errors.New("reinvestment cooldown active")
	ErrNoCandidates         = errors.New("no suitable reinvestment candidates")
)

// Options tunes profit routing and candidate selection.
type Options struct {
	MinProfit      float64
	ShortTermSplit float64
	LongTermSplit  float64
	Cooldown       time.Duration

	MinVolume24h float64
	MinMarketCap float64
	MinChange24h float64
	MaxChange24h float64

	LongTermMinVolume    float64
	LongTermMinMarketCap float64
}

// DefaultOptions returns the stock thresholds: profits under 50 USD are
// kept, 70% of a reinvested profit chases short-term momentum and 30%
// goes to a large-cap hold, with at most one reinvestment per user per
// hour.
func DefaultOptions() Options {
	return Options{
		MinProfit:            50,
		ShortTermSplit:       0.7,
		LongTermSplit:        0.3,
		Cooldown:             time.Hour,
		MinVolume24h:         1_000_000,
		MinMarketCap:         10_000_000,
		MinChange24h:         2,
		MaxChange24h:         20,
		LongTermMinVolume:    5_000_000,
		LongTermMinMarketCap: 50_000_000,
	}
}

// Service selects reinvestment targets from the market snapshots and
// executes the buys through the trade executor.
type Service struct {
	DB       *db.Database
	Executor *trade.Executor
	Metrics  *monitor.SystemMetrics
	Opts     Options

	mu      sync.Mutex
	lastRun map[int64]time.Time
}

func NewService(database *db.Database, executor *trade.Executor, metrics *monitor.SystemMetrics, opts Options) *Service {
	if opts.MinProfit <= 0 {
		opts = DefaultOptions()
	}
	return &Service{
		DB:       database,
		Executor: executor,
		Metrics:  metrics,
		Opts:     opts,
		lastRun:  make(map[int64]time.Time),
	}
}

// Leg is one side of a split reinvestment.
type Leg struct {
	Symbol    string        `json:"symbol"`
	AmountUSD float64       `json:"amount_usd"`
	LongTerm  bool          `json:"long_term"`
	Trade     *trade.Result `json:"trade"`
}

// Result describes a completed profit split.
type Result struct {
	ShortTerm Leg     `json:"short_term"`
	LongTerm  Leg     `json:"long_term"`
	TotalUSD  float64 `json:"total_usd"`
}

// ReinvestProfit splits the given realized profit across a short-term and
// a long-term buy. At most one reinvestment runs per user per cooldown
// window; the window only advances when both legs commit.
func (s *Service) ReinvestProfit(ctx context.Context, userID int64, profitUSD float64) (*Result, error) {
	if profitUSD < s.Opts.MinProfit {
		return nil, fmt.Errorf("%w: %.2f < %.2f", ErrProfitBelowThreshold, profitUSD, s.Opts.MinProfit)
	}

	s.mu.Lock()
	if last, ok := s.lastRun[userID]; ok && time.Since(last) < s.Opts.Cooldown {
		s.mu.Unlock()
		return nil, ErrCooldownActive
	}
	s.mu.Unlock()

	snapshots, err := s.DB.ListCryptoSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	short := s.pickCandidate(snapshots, false)
	long := s.pickCandidate(snapshots, true)
	if short == nil || long == nil {
		return nil, ErrNoCandidates
	}

	res := &Result{TotalUSD: profitUSD}
	res.ShortTerm, err = s.buyLeg(ctx, userID, *short, profitUSD*s.Opts.ShortTermSplit, false)
	if err != nil {
		return nil, fmt.Errorf("short-term leg: %w", err)
	}
	res.LongTerm, err = s.buyLeg(ctx, userID, *long, profitUSD*s.Opts.LongTermSplit, true)
	if err != nil {
		return nil, fmt.Errorf("long-term leg: %w", err)
	}

	s.mu.Lock()
	s.lastRun[userID] = time.Now()
	s.mu.Unlock()

	s.Metrics.IncrReinvestments()
	log.Printf("reinvest: user=%d split %.2f USD into %s/%s",
		userID, profitUSD, res.ShortTerm.Symbol, res.LongTerm.Symbol)
	return res, nil
}

func (s *Service) buyLeg(ctx context.Context, userID int64, c db.Cryptocurrency, amountUSD float64, longTerm bool) (Leg, error) {
	units := amountUSD / c.CurrentPrice
	t, err := s.Executor.Execute(ctx, trade.Request{
		UserID: userID,
		Symbol: c.Symbol,
		Type:   trade.Buy,
		Amount: units,
	})
	if err != nil {
		return Leg{}, err
	}
	return Leg{Symbol: c.Symbol, AmountUSD: amountUSD, LongTerm: longTerm, Trade: t}, nil
}

// pickCandidate returns the highest-momentum asset passing the volume,
// market-cap and 24h-change filters, or nil when none qualifies.
func (s *Service) pickCandidate(snapshots []db.Cryptocurrency, longTerm bool) *db.Cryptocurrency {
	minVolume := s.Opts.MinVolume24h
	minCap := s.Opts.MinMarketCap
	if longTerm {
		minVolume = s.Opts.LongTermMinVolume
		minCap = s.Opts.LongTermMinMarketCap
	}

	var candidates []db.Cryptocurrency
	for _, c := range snapshots {
		change := math.Abs(c.PriceChange24h)
		if c.CurrentPrice <= 0 ||
			c.Volume24h < minVolume ||
			c.MarketCap < minCap ||
			change < s.Opts.MinChange24h ||
			change > s.Opts.MaxChange24h {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return s.momentumScore(candidates[i], longTerm) > s.momentumScore(candidates[j], longTerm)
	})
	return &candidates[0]
}

// momentumScore weighs volume, 24h change and market cap. Long-term picks
// lean on market cap, short-term picks on volume and movement.
func (s *Service) momentumScore(c db.Cryptocurrency, longTerm bool) float64 {
	volumeWeight, changeWeight, capWeight := 0.4, 0.4, 0.2
	if longTerm {
		volumeWeight, changeWeight, capWeight = 0.3, 0.2, 0.5
	}

	volumeScore := math.Min(c.Volume24h/s.Opts.MinVolume24h, 1)
	changeScore := math.Abs(c.PriceChange24h) / s.Opts.MaxChange24h
	capScore := math.Min(c.MarketCap/s.Opts.MinMarketCap, 1)

	return volumeScore*volumeWeight + changeScore*changeWeight + capScore*capWeight
}
