package dispatch

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per chat so a single chat
// cannot monopolize the summarization provider. Zero rps disables
// limiting.
type limiterPool struct {
	mu    sync.Mutex
	m     map[int64]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) allow(chatID int64) bool {
	if p.rps <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[int64]*rate.Limiter)
	}
	l, ok := p.m[chatID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.rps), p.burst)
		p.m[chatID] = l
	}
	return l.Allow()
}
