package health

import (
	"context"
	"fmt"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // 仍可服务，部分能力受损
	StatusUnhealthy Status = "unhealthy" // 无法服务
)

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// worse 取较差的一个
func worse(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// CheckResult Latency 由 Aggregator 填写
type CheckResult struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func (f funcChecker) Name() string                          { return f.name }
func (f funcChecker) Check(ctx context.Context) CheckResult { return f.fn(ctx) }

// NewCheck 用函数构造检查器
func NewCheck(name string, fn func(ctx context.Context) CheckResult) Checker {
	return funcChecker{name: name, fn: fn}
}

// usageLimits 占用率分级阈值，超过 degraded 降级，超过 unhealthy 不健康
type usageLimits struct {
	degraded  float64
	unhealthy float64
}

func (l usageLimits) grade(usage float64) Status {
	switch {
	case l.unhealthy > 0 && usage > l.unhealthy:
		return StatusUnhealthy
	case usage > l.degraded:
		return StatusDegraded
	}
	return StatusHealthy
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
