package analytics

import "time"

// Strategy supplies the scoring formulas used to rank keys for refresh and
// eviction. The formulas are policy, not contract: swapping a Strategy must
// not affect cascade or versioning mechanics.
type Strategy interface {
	// Weight ranks a key for proactive recompute. Higher means sooner.
	Weight(accessCount int64, remaining time.Duration) float64

	// Decay scores how far through its lifetime a key is, 0 (fresh) to 1
	// (expired).
	Decay(age, originalTTL time.Duration) float64

	// Health scores how worth keeping a key is. Higher is healthier.
	Health(accessCount int64, remaining time.Duration, decay float64) float64

	// Predictive estimates the value of refreshing a key ahead of expiry.
	Predictive(accessCount int64, remaining, originalTTL time.Duration) float64
}

// DefaultStrategy carries the stock ratio formulas.
type DefaultStrategy struct{}

// Weight is access count over remaining TTL seconds, with the denominator
// clamped to 1 so short-lived hot keys rank highest.
func (DefaultStrategy) Weight(accessCount int64, remaining time.Duration) float64 {
	seconds := remaining.Seconds()
	if seconds < 1 {
		seconds = 1
	}
	return float64(accessCount) / seconds
}

// Decay is elapsed lifetime over original lifetime, clamped to [0, 1].
// Keys stored without expiry never decay.
func (DefaultStrategy) Decay(age, originalTTL time.Duration) float64 {
	if originalTTL <= 0 {
		return 0
	}
	d := age.Seconds() / originalTTL.Seconds()
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

// Health is weight scaled down by decay: hot keys with life left score
// high, stale idle keys approach zero.
func (s DefaultStrategy) Health(accessCount int64, remaining time.Duration, decay float64) float64 {
	return s.Weight(accessCount, remaining) * (1 - decay)
}

// Predictive is the weight a key will have at expiry: access pressure
// amplified by how little of the original lifetime is left.
func (s DefaultStrategy) Predictive(accessCount int64, remaining, originalTTL time.Duration) float64 {
	if originalTTL <= 0 {
		return 0
	}
	consumed := 1 - remaining.Seconds()/originalTTL.Seconds()
	if consumed < 0 {
		consumed = 0
	}
	return float64(accessCount) * consumed
}
