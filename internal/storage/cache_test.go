package storage

import (
	"testing"
)

// TestDownloadCacheAddHas 测试缓存记录与查询
func TestDownloadCacheAddHas(t *testing.T) {
	cache := NewDownloadCache(newTestStore(t))

	if has, _ := cache.Has("123"); has {
		t.Error("空缓存不应命中任何ID")
	}

	if err := cache.Add("123"); err != nil {
		t.Fatalf("记录失败: %v", err)
	}
	if has, _ := cache.Has("123"); !has {
		t.Error("记录后必须命中")
	}
	if has, _ := cache.Has("456"); has {
		t.Error("未记录的ID不应命中")
	}
}

// TestDownloadCacheIdempotent 测试重复记录幂等
func TestDownloadCacheIdempotent(t *testing.T) {
	cache := NewDownloadCache(newTestStore(t))

	for i := 0; i < 3; i++ {
		if err := cache.Add("123"); err != nil {
			t.Fatalf("第%d次记录失败: %v", i+1, err)
		}
	}

	ids, err := cache.List()
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("重复记录后数量 = %d, 期望 1 (Add必须幂等)", len(ids))
	}
}

// TestDownloadCacheClear 测试清空缓存
func TestDownloadCacheClear(t *testing.T) {
	cache := NewDownloadCache(newTestStore(t))

	_ = cache.Add("1")
	_ = cache.Add("2")

	if err := cache.Clear(); err != nil {
		t.Fatalf("清空失败: %v", err)
	}

	ids, err := cache.List()
	if err != nil {
		t.Fatalf("清空后读取失败: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("清空后数量 = %d, 期望 0", len(ids))
	}

	// 清空后可以重新记录
	if err := cache.Add("1"); err != nil {
		t.Fatalf("清空后记录失败: %v", err)
	}
	if has, _ := cache.Has("1"); !has {
		t.Error("清空后重新记录必须生效")
	}
}
