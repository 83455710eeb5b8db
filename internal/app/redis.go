package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
	redisstore "github.com/taoyao-code/packetcmd/internal/storage/redis"
)

// DeadLetterStore Redis 连接与其上的死信列表；Redis 未启用时两者均为 nil
type DeadLetterStore struct {
	Client *redisstore.Client
	Dead   *redisstore.DeadLetters
}

// Close 关闭底层连接，未启用时为空操作
func (s DeadLetterStore) Close() error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Close()
}

func OpenDeadLetterStore(cfg cfgpkg.RedisConfig, logger *zap.Logger) (DeadLetterStore, error) {
	if !cfg.Enabled {
		logger.Info("redis disabled, dead letters are only counted")
		return DeadLetterStore{}, nil
	}
	client, err := redisstore.NewClient(cfg)
	if err != nil {
		return DeadLetterStore{}, err
	}
	logger.Info("dead letter store ready",
		zap.String("addr", client.Addr()),
		zap.String("key", cfg.DeadLetterKey),
		zap.Int64("max", cfg.DeadLetterMax))
	return DeadLetterStore{
		Client: client,
		Dead:   redisstore.NewDeadLetters(client, cfg.DeadLetterKey, cfg.DeadLetterMax),
	}, nil
}
