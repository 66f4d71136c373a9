package storage

import (
	"testing"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
)

func testQueue(ids ...string) []models.ConversationLink {
	links := make([]models.ConversationLink, 0, len(ids))
	for _, id := range ids {
		links = append(links, models.ConversationLink{
			ConversationID: id,
			Href:           "https://x.com/i/grok?conversation=" + id,
		})
	}
	return links
}

// TestCrawlStateRoundTrip 测试队列状态的保存与重建
func TestCrawlStateRoundTrip(t *testing.T) {
	store := newTestStore(t)

	state := models.NewCrawlQueueState("run-7", testQueue("1", "2", "3"), models.FormatXML, false)
	state.Index = 1
	state.RetryCount = 2
	state.AddFailed(state.Queue[0])
	state.RetryMode = false

	if err := store.SaveCrawlState(state); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	restored, ok, err := store.LoadCrawlState()
	if err != nil {
		t.Fatalf("重建失败: %v", err)
	}
	if !ok {
		t.Fatal("保存后必须能重建状态")
	}

	if restored.RunID != "run-7" {
		t.Errorf("RunID = %s, 期望 run-7", restored.RunID)
	}
	if restored.Index != 1 || restored.RetryCount != 2 {
		t.Errorf("游标/重试计数 = %d/%d, 期望 1/2", restored.Index, restored.RetryCount)
	}
	if restored.Format != models.FormatXML || restored.AutoScroll {
		t.Errorf("格式/滚动 = %s/%v, 期望 xml/false", restored.Format, restored.AutoScroll)
	}
	if len(restored.Queue) != 3 || restored.Total != 3 {
		t.Errorf("队列长度/Total = %d/%d, 期望 3/3", len(restored.Queue), restored.Total)
	}
	if len(restored.Failed) != 1 || restored.Failed[0].ConversationID != "1" {
		t.Errorf("失败列表 = %+v, 期望一项ID=1", restored.Failed)
	}
}

// TestLoadCrawlStateAbsent 测试无进行中任务时的加载
func TestLoadCrawlStateAbsent(t *testing.T) {
	store := newTestStore(t)

	state, ok, err := store.LoadCrawlState()
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if ok || state != nil {
		t.Errorf("无任务时必须返回(nil, false), 实际: (%+v, %v)", state, ok)
	}

	if has, _ := store.HasCrawlState(); has {
		t.Error("无任务时HasCrawlState必须返回false")
	}
}

// TestClearCrawlState 测试状态清除不影响下载缓存
func TestClearCrawlState(t *testing.T) {
	store := newTestStore(t)
	cache := NewDownloadCache(store)

	state := models.NewCrawlQueueState("run-1", testQueue("1"), models.FormatMarkdown, true)
	if err := store.SaveCrawlState(state); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	if err := cache.Add("1"); err != nil {
		t.Fatalf("记录缓存失败: %v", err)
	}

	if err := store.ClearCrawlState(); err != nil {
		t.Fatalf("清除失败: %v", err)
	}

	if has, _ := store.HasCrawlState(); has {
		t.Error("清除后不应存在爬取状态")
	}
	// 下载缓存与单次爬取独立, 必须保留
	if has, _ := cache.Has("1"); !has {
		t.Error("清除爬取状态不能清掉下载缓存")
	}
}

// TestSaveCrawlStateRejectsInvalid 测试拒绝持久化非法状态
func TestSaveCrawlStateRejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	state := models.NewCrawlQueueState("run-1", testQueue("1"), models.FormatMarkdown, true)
	state.Index = 5 // 越界

	if err := store.SaveCrawlState(state); err == nil {
		t.Error("非法状态必须被拒绝持久化")
	}
	if has, _ := store.HasCrawlState(); has {
		t.Error("拒绝后存储中不应有状态残留")
	}
}
