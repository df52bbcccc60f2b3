package session

import (
	"math/rand/v2"
	"time"
)

// Rand 为编排所需的随机源，*rand.Rand 满足该接口。
type Rand interface {
	IntN(n int) int
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// NewRand 创建可复现的随机源，seed 为 0 时随机取种子。
func NewRand(seed uint64) Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x6a09e667f3bcc909))
}

func randInt(r Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

func uniform(r Rand, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*r.Float64()
}

func uniformDuration(r Rand, rng DurationRange) time.Duration {
	span := rng.Max - rng.Min
	if span <= 0 {
		return rng.Min
	}
	return rng.Min + time.Duration(r.Float64()*float64(span))
}
