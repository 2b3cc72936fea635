package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/companion/internal/cache"
)

// cacheScrapeTimeout 限制每次抓取读取缓存统计的耗时
const cacheScrapeTimeout = 2 * time.Second

// CacheStatsFunc 返回缓存当前的统计
type CacheStatsFunc func(ctx context.Context) (*cache.Stats, error)

// RegisterCache 导出名为 name 的缓存的命中率与键数量，每次抓取时调用 stats
func (c *Collector) RegisterCache(name string, stats CacheStatsFunc) error {
	labels := prometheus.Labels{"cache": name}
	return c.registerer.Register(&cacheCollector{
		stats:  stats,
		logger: c.logger,
		hitRatio: prometheus.NewDesc(
			prometheus.BuildFQName(c.namespace, "cache", "hit_ratio"),
			"Cache hits divided by lookups since start",
			nil, labels,
		),
		keys: prometheus.NewDesc(
			prometheus.BuildFQName(c.namespace, "cache", "keys"),
			"Number of keys in the cache database",
			nil, labels,
		),
	})
}

// cacheCollector 在抓取时读取统计，读取失败时本次不输出
type cacheCollector struct {
	stats    CacheStatsFunc
	logger   *zap.Logger
	hitRatio *prometheus.Desc
	keys     *prometheus.Desc
}

func (cc *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cc.hitRatio
	ch <- cc.keys
}

func (cc *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheScrapeTimeout)
	defer cancel()

	st, err := cc.stats(ctx)
	if err != nil {
		cc.logger.Debug("cache stats unavailable", zap.Error(err))
		return
	}
	ch <- prometheus.MustNewConstMetric(cc.hitRatio, prometheus.GaugeValue, st.HitRate())
	ch <- prometheus.MustNewConstMetric(cc.keys, prometheus.GaugeValue, float64(st.Keys))
}
