package tcpserver

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter 单会话入站帧令牌桶，超速帧由调用方丢弃
type RateLimiter struct {
	bucket  *rate.Limiter
	unlimit bool
	passed  atomic.Int64
	dropped atomic.Int64
}

// NewRateLimiter perSec<=0 不限速；burst<=0 时取 2*perSec，至少为 1
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = max(int(perSec*2), 1)
	}
	if perSec <= 0 {
		return &RateLimiter{bucket: rate.NewLimiter(rate.Inf, burst), unlimit: true}
	}
	return &RateLimiter{bucket: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (l *RateLimiter) Allow() bool {
	ok := l.bucket.Allow()
	if ok {
		l.passed.Add(1)
	} else {
		l.dropped.Add(1)
	}
	return ok
}

// Stats 不限速时 RatePerSecond 为 0
func (l *RateLimiter) Stats() RateLimiterStats {
	st := RateLimiterStats{
		Burst:         l.bucket.Burst(),
		AllowedTotal:  l.passed.Load(),
		RejectedTotal: l.dropped.Load(),
	}
	if !l.unlimit {
		st.RatePerSecond = float64(l.bucket.Limit())
	}
	return st
}

type RateLimiterStats struct {
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
	AllowedTotal  int64   `json:"allowed_total"`
	RejectedTotal int64   `json:"rejected_total"`
}
