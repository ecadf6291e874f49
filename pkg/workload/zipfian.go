package workload

import (
	"math"

	"scar/pkg/random"
)

// Zipfian picks keys in [0, items) skewed toward the low end, so a small
// set of keys draws most of the traffic -- the "hotspot" access pattern
// go-ycsb's generator.Zipfian builds toward a benchmark's working set.
// Reimplemented against this module's deterministic random.Source rather
// than math/rand, so it participates in the seed-replay contract (spec.md
// §9) when used inside a retried transaction.
type Zipfian struct {
	items int64
	theta float64
	alpha float64
	zetan float64
	eta   float64
}

// NewZipfian builds a Zipfian chooser over items keys with the standard
// YCSB skew constant (0.99).
func NewZipfian(items int64) *Zipfian {
	const theta = 0.99
	zetan := zeta(items, theta)
	zeta2 := zeta(2, theta)
	alpha := 1.0 / (1.0 - theta)
	eta := (1 - math.Pow(2.0/float64(items), 1-theta)) / (1 - zeta2/zetan)
	return &Zipfian{items: items, theta: theta, alpha: alpha, zetan: zetan, eta: eta}
}

func zeta(n int64, theta float64) float64 {
	var sum float64
	for i := int64(0); i < n; i++ {
		sum += 1 / math.Pow(float64(i+1), theta)
	}
	return sum
}

// Next draws the next key index in [0, items).
func (z *Zipfian) Next(rnd *random.Source) int64 {
	u := rnd.Float64()
	uz := u * z.zetan
	if uz < 1.0 {
		return 0
	}
	if uz < 1.0+math.Pow(0.5, z.theta) {
		return 1
	}
	return int64(float64(z.items) * math.Pow(z.eta*u-z.eta+1, z.alpha))
}
