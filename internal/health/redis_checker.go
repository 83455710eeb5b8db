package health

import (
	"context"

	redisstore "github.com/taoyao-code/packetcmd/internal/storage/redis"
)

var poolLimits = usageLimits{degraded: 0.9}

// RedisChecker 死信存储；Redis 只承载旁路数据，故障时最多降级
type RedisChecker struct {
	client *redisstore.Client
	dead   *redisstore.DeadLetters
}

// NewRedisChecker dead 可为 nil
func NewRedisChecker(client *redisstore.Client, dead *redisstore.DeadLetters) *RedisChecker {
	return &RedisChecker{client: client, dead: dead}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	if err := c.client.Ping(ctx); err != nil {
		return CheckResult{Status: StatusDegraded, Message: "ping failed: " + err.Error()}
	}

	pool := c.client.Pool()
	res := CheckResult{
		Status:  poolLimits.grade(pool.InUse()),
		Message: "ok",
		Details: map[string]any{
			"addr":        c.client.Addr(),
			"pool":        pool,
			"utilization": percent(pool.InUse()),
		},
	}
	if res.Status != StatusHealthy {
		res.Message = "connection pool near limit"
	}
	if c.dead != nil {
		if n, err := c.dead.Count(ctx); err == nil {
			res.Details["dead_letters"] = n
		}
	}
	return res
}
