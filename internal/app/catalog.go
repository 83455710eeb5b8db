package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/catalog"
)

// LoadCatalog 加载命令目录；未配置路径时使用内置目录
func LoadCatalog(path string, logger *zap.Logger) (*catalog.Catalog, error) {
	if path == "" {
		cat := catalog.DefaultCatalog()
		logger.Info("using builtin command catalog", zap.Int("commands", len(cat.Commands)))
		return cat, nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("command catalog loaded", zap.String("path", path), zap.Int("commands", len(cat.Commands)))
	return cat, nil
}
