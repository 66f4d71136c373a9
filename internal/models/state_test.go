package models

import (
	"testing"
)

func makeQueue(ids ...string) []ConversationLink {
	links := make([]ConversationLink, 0, len(ids))
	for _, id := range ids {
		links = append(links, ConversationLink{
			ConversationID: id,
			Href:           "https://x.com/i/grok?conversation=" + id,
		})
	}
	return links
}

// TestCrawlQueueStateValidate 测试状态不变式校验
func TestCrawlQueueStateValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CrawlQueueState)
		wantErr bool
		reason  string
	}{
		{
			name:   "初始状态合法",
			mutate: func(s *CrawlQueueState) {},
			reason: "NewCrawlQueueState产出的状态必须通过校验",
		},
		{
			name:   "游标等于队列长度",
			mutate: func(s *CrawlQueueState) { s.Index = len(s.Queue) },
			reason: "游标指向队尾表示队列走完, 是合法状态",
		},
		{
			name:    "游标越界",
			mutate:  func(s *CrawlQueueState) { s.Index = len(s.Queue) + 1 },
			wantErr: true,
			reason:  "游标不能超过队列长度",
		},
		{
			name:    "游标为负",
			mutate:  func(s *CrawlQueueState) { s.Index = -1 },
			wantErr: true,
			reason:  "游标不能为负数",
		},
		{
			name:    "重试计数为负",
			mutate:  func(s *CrawlQueueState) { s.RetryCount = -1 },
			wantErr: true,
			reason:  "重试计数不能为负数",
		},
		{
			name: "失败列表ID重复",
			mutate: func(s *CrawlQueueState) {
				s.Failed = append(s.Failed, s.Queue[0], s.Queue[0])
			},
			wantErr: true,
			reason:  "失败列表必须按会话ID唯一",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewCrawlQueueState("run-1", makeQueue("1", "2", "3"), FormatMarkdown, true)
			tt.mutate(state)
			err := state.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("期望校验失败但通过了 (原因: %s)", tt.reason)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("校验失败: %v (原因: %s)", err, tt.reason)
			}
		})
	}
}

// TestAddFailedDedup 测试失败列表按ID去重
func TestAddFailedDedup(t *testing.T) {
	state := NewCrawlQueueState("run-1", makeQueue("1", "2"), FormatMarkdown, true)

	state.AddFailed(state.Queue[0])
	state.AddFailed(state.Queue[0])
	state.AddFailed(state.Queue[1])

	if len(state.Failed) != 2 {
		t.Fatalf("失败列表长度 = %d, 期望 2 (重复加入必须被忽略)", len(state.Failed))
	}

	state.RemoveFailed("1")
	if len(state.Failed) != 1 || state.Failed[0].ConversationID != "2" {
		t.Errorf("移除后失败列表 = %+v, 期望只剩ID=2", state.Failed)
	}
}

// TestSwapToRetryPass 测试切换失败重试趟
func TestSwapToRetryPass(t *testing.T) {
	state := NewCrawlQueueState("run-1", makeQueue("1", "2", "3"), FormatXML, false)
	state.Index = 3
	state.RetryCount = 2
	state.AddFailed(state.Queue[0])
	state.AddFailed(state.Queue[2])

	state.SwapToRetryPass()

	if !state.RetryMode {
		t.Error("切换后必须处于重试趟模式")
	}
	if state.Index != 0 {
		t.Errorf("切换后游标 = %d, 期望 0", state.Index)
	}
	if state.RetryCount != 0 {
		t.Errorf("切换后重试计数 = %d, 期望 0", state.RetryCount)
	}
	if len(state.Queue) != 2 || state.Queue[0].ConversationID != "1" || state.Queue[1].ConversationID != "3" {
		t.Errorf("重试队列 = %+v, 期望为原失败列表", state.Queue)
	}
	if len(state.Failed) != 0 {
		t.Errorf("切换后失败列表必须清空, 实际: %+v", state.Failed)
	}
	if state.Total != 2 {
		t.Errorf("切换后Total = %d, 期望 2", state.Total)
	}
	// 格式与滚动设置跨趟保持
	if state.Format != FormatXML || state.AutoScroll {
		t.Errorf("重试趟必须沿用原运行的设置: format=%s, autoScroll=%v", state.Format, state.AutoScroll)
	}
}

// TestCurrentAndDrained 测试游标读取
func TestCurrentAndDrained(t *testing.T) {
	state := NewCrawlQueueState("run-1", makeQueue("1", "2"), FormatMarkdown, true)

	link, ok := state.Current()
	if !ok || link.ConversationID != "1" {
		t.Errorf("Current = (%+v, %v), 期望第一项", link, ok)
	}
	if state.Drained() {
		t.Error("游标在队首时不应判定为走完")
	}

	state.Index = 2
	if _, ok := state.Current(); ok {
		t.Error("游标越过队尾时Current必须返回false")
	}
	if !state.Drained() {
		t.Error("游标等于队列长度时必须判定为走完")
	}
}

// TestStateJSONRoundTrip 测试状态序列化往返
func TestStateJSONRoundTrip(t *testing.T) {
	state := NewCrawlQueueState("run-9", makeQueue("10", "20"), FormatXML, true)
	state.Index = 1
	state.RetryCount = 2
	state.AddFailed(state.Queue[0])
	state.RetryMode = true

	data, err := state.ToJSON()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}

	var restored CrawlQueueState
	if err := restored.FromJSON(data); err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}

	if restored.RunID != state.RunID ||
		restored.Index != state.Index ||
		restored.Format != state.Format ||
		restored.RetryCount != state.RetryCount ||
		restored.RetryMode != state.RetryMode ||
		len(restored.Queue) != len(state.Queue) ||
		len(restored.Failed) != len(state.Failed) {
		t.Errorf("往返后状态不一致:\n原始: %+v\n恢复: %+v", state, &restored)
	}
}
