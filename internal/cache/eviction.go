package cache

import (
	"sort"
	"time"

	"github.com/jmgilman/go/assets/policy"
)

// Weights parameterizes Score.
type Weights struct {
	AccessCount float64
	Recency     float64
	MaxAge      time.Duration
}

// WeightsFrom extracts the eviction weights from a policy.
func WeightsFrom(p *policy.Policy) Weights {
	return Weights{
		AccessCount: p.Eviction.AccessCountWeight,
		Recency:     p.Eviction.RecencyWeight,
		MaxAge:      p.Eviction.MaxAge,
	}
}

// RecencyFactor decays linearly from 1 at lastAccess to 0 at maxAge idle.
func RecencyFactor(lastAccess, now time.Time, maxAge time.Duration) float64 {
	if maxAge <= 0 {
		return 0
	}
	idle := now.Sub(lastAccess)
	if idle <= 0 {
		return 1
	}
	f := 1 - float64(idle)/float64(maxAge)
	if f < 0 {
		return 0
	}
	return f
}

// Score ranks an entry for eviction; lower scores go first. maxAccess is
// the largest access count in the store.
func Score(e *IndexEntry, maxAccess int64, now time.Time, w Weights) float64 {
	normalized := 0.0
	if maxAccess > 0 {
		normalized = float64(e.AccessCount) / float64(maxAccess)
	}
	return w.Recency*RecencyFactor(e.LastAccessedAt, now, w.MaxAge) + w.AccessCount*normalized
}

// Expired reports whether the entry was created more than maxAge ago.
func Expired(e *IndexEntry, now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(e.CreatedAt) > maxAge
}

// SelectVictims picks the entries to remove to reclaim need bytes. Every
// expired entry is selected first, oldest first, whatever need is. Then
// the remaining entries are taken in ascending score order until the
// selected sizes add up to need. The entry whose digest equals exclude is
// never selected.
func SelectVictims(entries []*IndexEntry, need int64, now time.Time, w Weights, exclude string) []*IndexEntry {
	var maxAccess int64
	for _, e := range entries {
		if e.AccessCount > maxAccess {
			maxAccess = e.AccessCount
		}
	}

	var expired, live []*IndexEntry
	for _, e := range entries {
		if e.Digest == exclude {
			continue
		}
		if Expired(e, now, w.MaxAge) {
			expired = append(expired, e)
		} else {
			live = append(live, e)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].CreatedAt.Equal(expired[j].CreatedAt) {
			return expired[i].CreatedAt.Before(expired[j].CreatedAt)
		}
		return expired[i].Digest < expired[j].Digest
	})

	var freed int64
	victims := make([]*IndexEntry, 0, len(expired))
	for _, e := range expired {
		victims = append(victims, e)
		freed += e.SizeBytes
	}
	if freed >= need {
		return victims
	}

	scores := make(map[string]float64, len(live))
	for _, e := range live {
		scores[e.Digest] = Score(e, maxAccess, now, w)
	}
	sort.Slice(live, func(i, j int) bool {
		si, sj := scores[live[i].Digest], scores[live[j].Digest]
		if si != sj {
			return si < sj
		}
		if !live[i].LastAccessedAt.Equal(live[j].LastAccessedAt) {
			return live[i].LastAccessedAt.Before(live[j].LastAccessedAt)
		}
		return live[i].Digest < live[j].Digest
	})

	for _, e := range live {
		if freed >= need {
			break
		}
		victims = append(victims, e)
		freed += e.SizeBytes
	}
	return victims
}
