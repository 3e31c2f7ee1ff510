package game

import (
	metrics "github.com/rcrowley/go-metrics"
)

// Metrics holds the engine's counters. They live in their own registry so the
// HTTP layer can export them next to its own.
type Metrics struct {
	registry metrics.Registry

	GamesCreated   metrics.Counter
	GamesSettled   metrics.Counter
	GamesCancelled metrics.Counter
	Draws          metrics.Counter
	Forfeits       metrics.Counter
	Commits        metrics.Counter
	Reveals        metrics.Counter
	HashMismatches metrics.Counter
	JackpotPayouts metrics.Counter
	Rejected       metrics.Counter

	Jackpot    metrics.GaugeFloat64
	OpenGames  metrics.Gauge
	SettleTime metrics.Timer
}

// NewMetrics registers the engine metrics in r. A nil r creates a fresh registry.
func NewMetrics(r metrics.Registry) *Metrics {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &Metrics{
		registry:       r,
		GamesCreated:   metrics.GetOrRegisterCounter("rps.games.created", r),
		GamesSettled:   metrics.GetOrRegisterCounter("rps.games.settled", r),
		GamesCancelled: metrics.GetOrRegisterCounter("rps.games.cancelled", r),
		Draws:          metrics.GetOrRegisterCounter("rps.games.draws", r),
		Forfeits:       metrics.GetOrRegisterCounter("rps.games.forfeits", r),
		Commits:        metrics.GetOrRegisterCounter("rps.moves.committed", r),
		Reveals:        metrics.GetOrRegisterCounter("rps.moves.revealed", r),
		HashMismatches: metrics.GetOrRegisterCounter("rps.moves.hash_mismatch", r),
		JackpotPayouts: metrics.GetOrRegisterCounter("rps.jackpot.payouts", r),
		Rejected:       metrics.GetOrRegisterCounter("rps.calls.rejected", r),
		Jackpot:        metrics.GetOrRegisterGaugeFloat64("rps.jackpot.pool", r),
		OpenGames:      metrics.GetOrRegisterGauge("rps.games.open", r),
		SettleTime:     metrics.GetOrRegisterTimer("rps.settle.duration", r),
	}
}

func (m *Metrics) Registry() metrics.Registry { return m.registry }
