// Package ladder maps a continuous level-of-detail signal to a discrete
// quality tier.
//
// Each tier's threshold is the upper edge of the signal range it serves.
// A signal exactly on a threshold belongs to the next tier up, and any
// signal above the last threshold gets the top tier. A Ladder adds
// hysteresis so a signal hovering around a boundary does not flap between
// tiers, and applies device caps after the lookup so they limit the
// result without changing the remembered intent.
package ladder

import (
	"sync"

	"github.com/jmgilman/go/assets/asset"
	"github.com/jmgilman/go/assets/policy"
)

// Lookup returns the tier for a signal with no hysteresis. specs must be
// ordered by ascending threshold.
func Lookup(specs []policy.TierSpec, signal float64) asset.Tier {
	return specs[lookupIndex(specs, signal)].Tier
}

func lookupIndex(specs []policy.TierSpec, signal float64) int {
	for i, s := range specs {
		if signal < s.Threshold {
			return i
		}
	}
	return len(specs) - 1
}

// Ladder picks tiers for a stream of signals from one viewer. It is safe
// for concurrent use.
type Ladder struct {
	specs      []policy.TierSpec
	hysteresis float64
	caps       map[asset.PerformanceLevel]asset.Tier

	mu      sync.Mutex
	current int
	primed  bool
}

// New creates a ladder from a validated policy.
func New(p *policy.Policy) *Ladder {
	return &Ladder{
		specs:      p.Tiers,
		hysteresis: p.Loading.Hysteresis,
		caps:       p.Device.PerformanceCaps,
	}
}

// PickTier returns the tier for signal, remembering the uncapped result
// for the next call.
func (l *Ladder) PickTier(signal float64, level asset.PerformanceLevel) asset.Tier {
	l.mu.Lock()
	idx := lookupIndex(l.specs, signal)
	if l.primed {
		idx = l.settle(l.current, idx, signal)
	}
	l.current = idx
	l.primed = true
	l.mu.Unlock()

	return l.capped(l.specs[idx].Tier, level)
}

// Peek returns the tier for signal without hysteresis and without
// touching the remembered intent.
func (l *Ladder) Peek(signal float64, level asset.PerformanceLevel) asset.Tier {
	return l.capped(Lookup(l.specs, signal), level)
}

// Current returns the remembered uncapped tier and whether any signal has
// been seen.
func (l *Ladder) Current() (asset.Tier, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.primed {
		return l.specs[0].Tier, false
	}
	return l.specs[l.current].Tier, true
}

// Reset forgets the remembered intent.
func (l *Ladder) Reset() {
	l.mu.Lock()
	l.current = 0
	l.primed = false
	l.mu.Unlock()
}

// settle moves from the previous index toward the target one boundary at a
// time, stopping at the first boundary the signal does not clear by the
// hysteresis margin. The boundary between index i-1 and i is the
// threshold of i-1.
func (l *Ladder) settle(prev, target int, signal float64) int {
	idx := prev
	for idx < target && signal >= l.specs[idx].Threshold*(1+l.hysteresis) {
		idx++
	}
	for idx > target && signal < l.specs[idx-1].Threshold*(1-l.hysteresis) {
		idx--
	}
	return idx
}

func (l *Ladder) capped(t asset.Tier, level asset.PerformanceLevel) asset.Tier {
	if limit, ok := l.caps[level]; ok && t > limit {
		return limit
	}
	return t
}
