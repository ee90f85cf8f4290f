package media

import (
	"math/big"
	"time"
)

// Rational is a time base or rate expressed as Num/Den.
type Rational struct {
	Num int
	Den int
}

func NewRational(num, den int) Rational {
	if den == 0 {
		den = 1
	}
	return Rational{Num: num, Den: den}
}

func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Duration returns the length of one unit of r.
func (r Rational) Duration() time.Duration {
	if r.Den == 0 {
		return 0
	}
	return time.Duration(int64(r.Num) * int64(time.Second) / int64(r.Den))
}

var (
	TimeBase90kHz = Rational{Num: 1, Den: 90000}
	TimeBase48kHz = Rational{Num: 1, Den: 48000}
	TimeBase44kHz = Rational{Num: 1, Den: 44100}
)

// ToTimescale converts d to ticks of a clock running at timescale Hz,
// rounding to nearest. Large values go through big.Int to avoid overflow.
func ToTimescale(d time.Duration, timescale uint32) int64 {
	if timescale == 0 {
		return 0
	}
	n := int64(d)
	ts := int64(timescale)
	if n >= 0 && n < (1<<63-1)/ts {
		return (n*ts + int64(time.Second)/2) / int64(time.Second)
	}

	v := new(big.Int).Mul(big.NewInt(n), big.NewInt(ts))
	half := big.NewInt(int64(time.Second) / 2)
	if n < 0 {
		v.Sub(v, half)
	} else {
		v.Add(v, half)
	}
	v.Quo(v, big.NewInt(int64(time.Second)))
	return v.Int64()
}

// FromTimescale converts ticks at timescale Hz back to a duration.
func FromTimescale(ticks int64, timescale uint32) time.Duration {
	if timescale == 0 {
		return 0
	}
	return time.Duration(ticks * int64(time.Second) / int64(timescale))
}
