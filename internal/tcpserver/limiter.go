package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrConnectionLimit 并发连接数已达上限
var ErrConnectionLimit = errors.New("connection limit exceeded")

const defaultMaxConnections = 10000

// ConnectionLimiter 并发连接上限
// 每个连接持有一个许可，连接结束时归还。
type ConnectionLimiter struct {
	sem      *semaphore.Weighted
	wait     time.Duration
	max      int
	active   atomic.Int64
	rejected atomic.Int64
}

// NewConnectionLimiter wait 为满载时等待空位的最长时间，<=0 表示不等待
func NewConnectionLimiter(maxConn int, wait time.Duration) *ConnectionLimiter {
	if maxConn <= 0 {
		maxConn = defaultMaxConnections
	}
	return &ConnectionLimiter{
		sem:  semaphore.NewWeighted(int64(maxConn)),
		wait: wait,
		max:  maxConn,
	}
}

// TryAcquire 非阻塞获取许可
func (l *ConnectionLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		l.rejected.Add(1)
		return false
	}
	l.active.Add(1)
	return true
}

// Acquire 获取许可，满载时最多等待 wait
func (l *ConnectionLimiter) Acquire(ctx context.Context) error {
	ok := l.sem.TryAcquire(1)
	if !ok && l.wait > 0 {
		wctx, cancel := context.WithTimeout(ctx, l.wait)
		ok = l.sem.Acquire(wctx, 1) == nil
		cancel()
	}
	if !ok {
		l.rejected.Add(1)
		return fmt.Errorf("%w: max=%d", ErrConnectionLimit, l.max)
	}
	l.active.Add(1)
	return nil
}

// Release 归还许可；没有未归还的许可时忽略
func (l *ConnectionLimiter) Release() {
	for {
		n := l.active.Load()
		if n <= 0 {
			return
		}
		if l.active.CompareAndSwap(n, n-1) {
			l.sem.Release(1)
			return
		}
	}
}

func (l *ConnectionLimiter) Current() int { return int(l.active.Load()) }

func (l *ConnectionLimiter) MaxConnections() int { return l.max }

func (l *ConnectionLimiter) Stats() LimiterStats {
	cur := l.Current()
	return LimiterStats{
		MaxConnections:    l.max,
		ActiveConnections: cur,
		RejectedTotal:     l.rejected.Load(),
		Utilization:       float64(cur) / float64(l.max),
	}
}

// LimiterStats Utilization 取值 0..1
type LimiterStats struct {
	MaxConnections    int     `json:"max_connections"`
	ActiveConnections int     `json:"active_connections"`
	RejectedTotal     int64   `json:"rejected_total"`
	Utilization       float64 `json:"utilization"`
}
