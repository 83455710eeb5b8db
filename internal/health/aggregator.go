package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 2 * time.Second

// Aggregator 并发执行全部检查，整体受 timeout 约束
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{checkers: checkers, timeout: defaultCheckTimeout}
}

// Add 运行期追加检查器
func (a *Aggregator) Add(c Checker) {
	a.mu.Lock()
	a.checkers = append(a.checkers, c)
	a.mu.Unlock()
}

func (a *Aggregator) snapshot() []Checker {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Checker(nil), a.checkers...)
}

func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	list := a.snapshot()
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out := make([]CheckResult, len(list))
	var g errgroup.Group
	for i, c := range list {
		i, c := i, c
		g.Go(func() error {
			begin := time.Now()
			r := c.Check(ctx)
			r.Latency = time.Since(begin)
			out[i] = r
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]CheckResult, len(list))
	for i, c := range list {
		results[c.Name()] = out[i]
	}
	return results
}

// Overall 各项中最差的状态；没有检查项时为健康
func Overall(results map[string]CheckResult) Status {
	st := StatusHealthy
	for _, r := range results {
		st = worse(st, r.Status)
	}
	return st
}

// Ready 降级仍算就绪
func (a *Aggregator) Ready(ctx context.Context) bool {
	return Overall(a.CheckAll(ctx)) != StatusUnhealthy
}

type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

func (a *Aggregator) Report(ctx context.Context) HealthReport {
	checks := a.CheckAll(ctx)
	return HealthReport{Status: Overall(checks), Timestamp: time.Now(), Checks: checks}
}
