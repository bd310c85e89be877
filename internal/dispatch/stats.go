package dispatch

import "sync/atomic"

// Stats es una foto del dispatcher. Solo lectura.
type Stats struct {
	Healthy       bool `json:"isHealthy"`
	ActiveHandler bool `json:"activeHandler"`
	PendingQueue  int  `json:"pendingQueue"`
	CacheSize     int  `json:"cacheSize"`
	InFlight      int  `json:"inFlightCount"`
	Registered    int  `json:"registered"`

	Submitted      int64 `json:"submitted"`
	Invalid        int64 `json:"invalid"`
	RateLimited    int64 `json:"rateLimited"`
	CacheHits      int64 `json:"cacheHits"`
	Dispatched     int64 `json:"dispatched"`
	Queued         int64 `json:"queued"`
	Coalesced      int64 `json:"coalesced"`
	Completed      int64 `json:"completed"`
	Failed         int64 `json:"failed"`
	Delivered      int64 `json:"delivered"`
	LateDeliveries int64 `json:"lateDeliveries"`
	Expired        int64 `json:"expired"`
}

type counters struct {
	submitted      atomic.Int64
	invalid        atomic.Int64
	rateLimited    atomic.Int64
	cacheHits      atomic.Int64
	dispatched     atomic.Int64
	queued         atomic.Int64
	coalesced      atomic.Int64
	completed      atomic.Int64
	failed         atomic.Int64
	delivered      atomic.Int64
	lateDeliveries atomic.Int64
	expired        atomic.Int64
}

func (c *counters) outcome(o Outcome) {
	switch o {
	case Invalid:
		c.invalid.Add(1)
	case RateLimited:
		c.rateLimited.Add(1)
	case CacheHit:
		c.cacheHits.Add(1)
	case Dispatched:
		c.dispatched.Add(1)
	case Queued:
		c.queued.Add(1)
	case Coalesced:
		c.coalesced.Add(1)
	}
}

func (c *counters) fill(s *Stats) {
	s.Submitted = c.submitted.Load()
	s.Invalid = c.invalid.Load()
	s.RateLimited = c.rateLimited.Load()
	s.CacheHits = c.cacheHits.Load()
	s.Dispatched = c.dispatched.Load()
	s.Queued = c.queued.Load()
	s.Coalesced = c.coalesced.Load()
	s.Completed = c.completed.Load()
	s.Failed = c.failed.Load()
	s.Delivered = c.delivered.Load()
	s.LateDeliveries = c.lateDeliveries.Load()
	s.Expired = c.expired.Load()
}

func (c *counters) reset() {
	for _, v := range []*atomic.Int64{
		&c.submitted, &c.invalid, &c.rateLimited, &c.cacheHits,
		&c.dispatched, &c.queued, &c.coalesced, &c.completed,
		&c.failed, &c.delivered, &c.lateDeliveries, &c.expired,
	} {
		v.Store(0)
	}
}
