package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/internal/cache"
	"github.com/BaSui01/companion/internal/database"
)

// 历史后端名称
const (
	BackendFile  = "file"
	BackendSQL   = "sql"
	BackendMongo = "mongo"
)

// Open builds the store selected by cfg.History.Backend, optionally fronted
// by the redis cache. The caller closes the result when it implements Closer.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store Store
		err   error
	)
	switch cfg.History.Backend {
	case BackendFile, "":
		store = NewFileStore(cfg.History.Dir, logger)
	case BackendSQL:
		var pool *database.PoolManager
		pool, err = database.Open(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		store = NewSQLStore(pool, logger)
	case BackendMongo:
		store, err = NewMongoStore(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}

	if !cfg.History.CacheEnabled || !cfg.Redis.Enabled {
		logger.Info("history store ready", zap.String("backend", cfg.History.Backend))
		return store, nil
	}

	ccfg := cache.DefaultConfig()
	ccfg.Addr = cfg.Redis.Addr
	ccfg.Password = cfg.Redis.Password
	ccfg.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		ccfg.PoolSize = cfg.Redis.PoolSize
	}
	ccfg.MinIdleConns = cfg.Redis.MinIdleConns
	if cfg.History.CacheTTL > 0 {
		ccfg.DefaultTTL = cfg.History.CacheTTL
	}
	cm, err := cache.NewManager(ccfg, logger)
	if err != nil {
		// 缓存不可用时直接使用后端
		logger.Warn("history cache disabled", zap.Error(err))
		return store, nil
	}
	logger.Info("history store ready", zap.String("backend", cfg.History.Backend), zap.Bool("cached", true))
	return &cachedCloser{CachedStore: NewCachedStore(store, cm, ccfg.DefaultTTL, logger), cache: cm}, nil
}

// cachedCloser 同时关闭缓存连接
type cachedCloser struct {
	*CachedStore
	cache *cache.Manager
}

func (c *cachedCloser) Close(ctx context.Context) error {
	err := c.CachedStore.Close(ctx)
	if cerr := c.cache.Close(); err == nil {
		err = cerr
	}
	return err
}
