package service

import (
	"testing"
	"time"

	"github.com/Queas/HGPH-4.0/internal/domain/model"
)

// TestPublicCache_GetSet проверяет базовые операции Get/Set.
func TestPublicCache_GetSet(t *testing.T) {
	cache := NewPublicCache(4, 5*time.Minute)

	if _, ok := cache.Get(publicCacheKey); ok {
		t.Fatal("ожидался cache miss для нового ключа")
	}

	cache.Set(publicCacheKey, []model.KnowledgeRecord{{ID: "rec-1"}})
	got, ok := cache.Get(publicCacheKey)
	if !ok {
		t.Fatal("ожидался cache hit после Set")
	}
	if len(got) != 1 || got[0].ID != "rec-1" {
		t.Errorf("Get() = %+v", got)
	}
}

// TestPublicCache_Purge проверяет сброс кэша.
func TestPublicCache_Purge(t *testing.T) {
	cache := NewPublicCache(4, 5*time.Minute)
	cache.Set(publicCacheKey, []model.KnowledgeRecord{{ID: "rec-1"}})
	cache.Purge()

	if _, ok := cache.Get(publicCacheKey); ok {
		t.Error("ожидался cache miss после Purge")
	}
}

// TestPublicCache_TTL проверяет автоматическое истечение записей.
func TestPublicCache_TTL(t *testing.T) {
	cache := NewPublicCache(4, 50*time.Millisecond)
	cache.Set(publicCacheKey, []model.KnowledgeRecord{{ID: "rec-1"}})

	time.Sleep(150 * time.Millisecond)

	if _, ok := cache.Get(publicCacheKey); ok {
		t.Error("ожидался cache miss после истечения TTL")
	}
}
