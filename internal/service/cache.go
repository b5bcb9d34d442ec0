// cache.go — LRU-кэш публичной коллекции с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hg_public_cache_hits_total",
		Help: "Общее количество попаданий в кэш публичной коллекции.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hg_public_cache_misses_total",
		Help: "Общее количество промахов кэша публичной коллекции.",
	})
)

// PublicCache — кэш анонимной публичной коллекции.
// Кэш per-instance. Любая мутация записей на этом экземпляре сбрасывает его целиком.
type PublicCache struct {
	cache *expirable.LRU[string, []model.KnowledgeRecord]
}

// NewPublicCache создаёт кэш с указанным размером и TTL.
func NewPublicCache(maxSize int, ttl time.Duration) *PublicCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &PublicCache{cache: expirable.NewLRU[string, []model.KnowledgeRecord](maxSize, nil, ttl)}
}

// Get возвращает коллекцию по ключу. Обновляет метрики hit/miss.
func (c *PublicCache) Get(key string) ([]model.KnowledgeRecord, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set сохраняет коллекцию.
func (c *PublicCache) Set(key string, records []model.KnowledgeRecord) {
	c.cache.Add(key, records)
}

// Purge сбрасывает кэш целиком.
func (c *PublicCache) Purge() {
	c.cache.Purge()
}
