package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeadLetter 被丢弃的报文（队列溢出、发送失败等）
type DeadLetter struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Remote    string    `json:"remote,omitempty"`
	Queue     string    `json:"queue"`  // inbound | outbound
	Reason    string    `json:"reason"` // 状态名，如 queue_overflow
	Data      []byte    `json:"data"`
	Timestamp uint32    `json:"timestamp"` // 报文时间戳（会话毫秒）
	CreatedAt time.Time `json:"created_at"`
}

// DeadLetters Redis 列表形式的死信存储（LPUSH + LTRIM 保留最近 limit 条）
type DeadLetters struct {
	client *Client
	key    string
	limit  int64
}

// NewDeadLetters 创建死信存储；limit <= 0 表示不裁剪
func NewDeadLetters(client *Client, key string, limit int64) *DeadLetters {
	if key == "" {
		key = "pcmd:deadletters"
	}
	return &DeadLetters{client: client, key: key, limit: limit}
}

// Push 写入一条死信，缺省的 ID/时间自动填充
func (d *DeadLetters) Push(ctx context.Context, dl *DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	pipe := d.client.rdb.TxPipeline()
	pipe.LPush(ctx, d.key, data)
	if d.limit > 0 {
		pipe.LTrim(ctx, d.key, 0, d.limit-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push dead letter: %w", err)
	}
	return nil
}

// Count 当前死信数量
func (d *DeadLetters) Count(ctx context.Context) (int64, error) {
	return d.client.rdb.LLen(ctx, d.key).Result()
}

// List 最近 n 条死信（新的在前），无法解析的条目跳过
func (d *DeadLetters) List(ctx context.Context, n int64) ([]DeadLetter, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := d.client.rdb.LRange(ctx, d.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, s := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(s), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// Clear 删除全部死信
func (d *DeadLetters) Clear(ctx context.Context) error {
	return d.client.rdb.Del(ctx, d.key).Err()
}
