package utils

import "sync"

// DefaultAvgWeight is the weight of a new sample in a zero AvgVal.
const DefaultAvgWeight = 0.1

// AvgVal is an exponentially weighted moving average. The first sample is
// taken as is.
type AvgVal struct {
	lock   sync.Mutex
	weight float64
	v      float64
	seeded bool
}

// NewAvgVal weighs every new sample with weight, 0 < weight <= 1.
func NewAvgVal(weight float64) *AvgVal {
	if weight <= 0 || weight > 1 {
		weight = DefaultAvgWeight
	}
	return &AvgVal{weight: weight}
}

func (a *AvgVal) Add(val float64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.seeded {
		a.v, a.seeded = val, true
		return
	}
	w := a.weight
	if w == 0 {
		w = DefaultAvgWeight
	}
	a.v += w * (val - a.v)
}

func (a *AvgVal) Val() float64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.v
}
