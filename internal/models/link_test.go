package models

import (
	"testing"
)

// TestParseConversationLink 测试会话链接解析
func TestParseConversationLink(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		wantID   string
		wantHref string
		wantErr  bool
		reason   string
	}{
		{
			name:     "标准查询参数链接",
			href:     "https://x.com/i/grok?conversation=123456",
			wantID:   "123456",
			wantHref: "https://x.com/i/grok?conversation=123456",
			reason:   "conversation参数是首选的ID来源",
		},
		{
			name:     "相对路径补全",
			href:     "/i/grok?conversation=789",
			wantID:   "789",
			wantHref: "https://x.com/i/grok?conversation=789",
			reason:   "站内相对链接必须归一化为绝对URL",
		},
		{
			name:     "路径式链接兜底",
			href:     "https://x.com/i/grok/555888",
			wantID:   "555888",
			wantHref: "https://x.com/i/grok/555888",
			reason:   "无查询参数时取末尾数字路径段",
		},
		{
			name:     "相对路径式链接",
			href:     "/i/grok/42",
			wantID:   "42",
			wantHref: "https://x.com/i/grok/42",
			reason:   "路径兜底同样适用于相对引用",
		},
		{
			name:    "历史列表页无ID",
			href:    "https://x.com/i/grok",
			wantErr: true,
			reason:  "列表页不指向具体会话",
		},
		{
			name:    "末尾路径段非数字",
			href:    "https://x.com/i/grok/settings",
			wantErr: true,
			reason:  "路径兜底只接受纯数字段",
		},
		{
			name:    "空链接",
			href:    "",
			wantErr: true,
			reason:  "空输入必须报错",
		},
		{
			name:     "带额外查询参数",
			href:     "https://x.com/i/grok?foo=bar&conversation=99&baz=1",
			wantID:   "99",
			wantHref: "https://x.com/i/grok?foo=bar&conversation=99&baz=1",
			reason:   "正则按参数名匹配, 不依赖参数顺序",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := ParseConversationLink(tt.href)
			if tt.wantErr {
				if err == nil {
					t.Errorf("期望报错但成功: %+v (原因: %s)", link, tt.reason)
				}
				return
			}
			if err != nil {
				t.Fatalf("解析失败: %v (原因: %s)", err, tt.reason)
			}
			if link.ConversationID != tt.wantID {
				t.Errorf("会话ID = %s, 期望 %s (原因: %s)", link.ConversationID, tt.wantID, tt.reason)
			}
			if link.Href != tt.wantHref {
				t.Errorf("Href = %s, 期望 %s (原因: %s)", link.Href, tt.wantHref, tt.reason)
			}
		})
	}
}

// TestNormalizeHref 测试链接归一化
func TestNormalizeHref(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		expected string
		reason   string
	}{
		{"绝对URL保持不变", "https://x.com/i/grok?conversation=1", "https://x.com/i/grok?conversation=1", "已是绝对URL"},
		{"根相对路径", "/i/grok?conversation=2", "https://x.com/i/grok?conversation=2", "补全站点前缀"},
		{"无前导斜杠", "i/grok?conversation=3", "https://x.com/i/grok?conversation=3", "补全前缀和斜杠"},
		{"空串", "", "", "空输入原样返回"},
		{"首尾空白", "  /i/grok?conversation=4  ", "https://x.com/i/grok?conversation=4", "先去除空白再归一化"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeHref(tt.href); got != tt.expected {
				t.Errorf("NormalizeHref(%q) = %q, 期望 %q (原因: %s)", tt.href, got, tt.expected, tt.reason)
			}
		})
	}
}

// TestDedupeLinks 测试按会话ID去重
func TestDedupeLinks(t *testing.T) {
	links := []ConversationLink{
		{ConversationID: "1", Href: "https://x.com/i/grok?conversation=1"},
		{ConversationID: "2", Href: "https://x.com/i/grok?conversation=2"},
		{ConversationID: "1", Href: "https://x.com/i/grok?conversation=1&dup=true"},
		{ConversationID: "", Href: "https://x.com/i/grok"},
		{ConversationID: "3", Href: "https://x.com/i/grok?conversation=3"},
	}

	out := DedupeLinks(links)

	if len(out) != 3 {
		t.Fatalf("去重后数量 = %d, 期望 3", len(out))
	}
	// 顺序稳定: 保留首次出现
	wantIDs := []string{"1", "2", "3"}
	for i, id := range wantIDs {
		if out[i].ConversationID != id {
			t.Errorf("第%d项ID = %s, 期望 %s (去重必须保持首次出现顺序)", i, out[i].ConversationID, id)
		}
	}
	// 重复ID保留首个href
	if out[0].Href != "https://x.com/i/grok?conversation=1" {
		t.Errorf("重复ID必须保留首次出现的href, 实际: %s", out[0].Href)
	}
}

// TestURLClassification 测试URL类型判定
func TestURLClassification(t *testing.T) {
	tests := []struct {
		name             string
		url              string
		wantConversation bool
		wantHistory      bool
		reason           string
	}{
		{"会话页", "https://x.com/i/grok?conversation=1", true, false, "带conversation参数"},
		{"历史列表页", "https://x.com/i/grok", false, true, "grok路径但无conversation参数"},
		{"无关页面", "https://x.com/home", false, false, "既非会话也非历史"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConversationURL(tt.url); got != tt.wantConversation {
				t.Errorf("IsConversationURL = %v, 期望 %v (原因: %s)", got, tt.wantConversation, tt.reason)
			}
			if got := IsHistoryURL(tt.url); got != tt.wantHistory {
				t.Errorf("IsHistoryURL = %v, 期望 %v (原因: %s)", got, tt.wantHistory, tt.reason)
			}
		})
	}
}
