package crawlers

import (
	"context"
	"testing"
	"time"
)

// fakeLinkSource 内存链接采集表面
// batches按每次收割依次返回, 超出后停在最后一批(虚拟列表已稳定)
type fakeLinkSource struct {
	fakeSurface
	batches [][]string
	bIdx    int
}

func (f *fakeLinkSource) Hrefs() ([]string, error) {
	i := f.bIdx
	if i >= len(f.batches) {
		i = len(f.batches) - 1
	}
	f.bIdx++
	return f.batches[i], nil
}

func newTestCollector(source LinkSource, retries int) *LinkCollector {
	lc := NewLinkCollector(source)
	lc.ScrollRetries = retries
	lc.sleep = func(time.Duration) {}
	return lc
}

// TestLinkCollectorCollect 测试边滚动边采集与去重
func TestLinkCollectorCollect(t *testing.T) {
	source := &fakeLinkSource{
		batches: [][]string{
			// 首轮: 视口内的两条
			{"/i/grok?conversation=100", "/i/grok?conversation=101"},
			// 滚动后: 101仍在视口内, 新增102(路径形式), 混入无效链接
			{"/i/grok?conversation=101", "/i/grok/102", "/i/grok", "/home"},
			// 之后列表稳定
			{"/i/grok?conversation=101", "/i/grok/102"},
		},
	}
	collector := newTestCollector(source, 2)

	links, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("采集失败: %v", err)
	}

	wantIDs := []string{"100", "101", "102"}
	if len(links) != len(wantIDs) {
		t.Fatalf("链接数 = %d, 期望 %d (必须按会话ID去重)", len(links), len(wantIDs))
	}
	for i, want := range wantIDs {
		if links[i].ConversationID != want {
			t.Errorf("第%d条ID = %s, 期望 %s (必须保持首次发现顺序)", i, links[i].ConversationID, want)
		}
	}
	if source.wiggles != 2 {
		t.Errorf("抖动次数 = %d, 期望 2 (无新增时必须回滚再触底)", source.wiggles)
	}
}

// TestLinkCollectorMaxLinks 测试链接总数上限
func TestLinkCollectorMaxLinks(t *testing.T) {
	source := &fakeLinkSource{
		batches: [][]string{
			{"/i/grok?conversation=1", "/i/grok?conversation=2", "/i/grok?conversation=3"},
		},
	}
	collector := newTestCollector(source, 10)
	collector.MaxLinks = 2

	links, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("采集失败: %v", err)
	}
	// 首轮收割已达上限, 不再进入滚动循环
	if len(links) != 3 {
		t.Fatalf("链接数 = %d, 期望 3 (首轮收割不截断)", len(links))
	}
	if source.bottoms != 0 {
		t.Errorf("触底次数 = %d, 期望 0", source.bottoms)
	}
}

// TestLinkCollectorCancel 测试上下文取消
func TestLinkCollectorCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &fakeLinkSource{batches: [][]string{{"/i/grok?conversation=1"}}}
	collector := newTestCollector(source, 3)

	links, err := collector.Collect(ctx)
	if err == nil {
		t.Fatal("已取消的上下文必须返回错误")
	}
	// 取消发生在首轮收割之前
	if len(links) != 0 {
		t.Errorf("链接数 = %d, 期望 0", len(links))
	}
	if source.bIdx != 0 {
		t.Errorf("收割次数 = %d, 期望 0", source.bIdx)
	}
}
