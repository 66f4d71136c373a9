package crawlers

import (
	"strings"
	"testing"
	"time"
)

// TestReadinessMarkers 测试就绪探测的三个信号选择器
func TestReadinessMarkers(t *testing.T) {
	tests := []struct {
		name   string
		marker string
		reason string
	}{
		{"用户头像", `[data-testid*="UserAvatar"]`, "头像节点是用户消息就绪的标志"},
		{"引用来源", `[data-testid="grok_citation_web_result"]`, "引用卡片用data-testid标记, 纯引用回复页只有这个信号"},
		{"主容器正文", `[data-testid="primaryColumn"]`, "兜底信号按主容器正文长度判定"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(readinessJS, tt.marker) {
				t.Errorf("就绪探测脚本缺少选择器 %q (%s)", tt.marker, tt.reason)
			}
			// 诊断报告统计的选择器必须和就绪信号一致, 否则排查时对不上
			if !strings.Contains(debugJS, tt.marker) {
				t.Errorf("诊断脚本缺少选择器 %q", tt.marker)
			}
		})
	}
}

// TestNewReadinessProbeDefaults 测试探测器默认参数
func TestNewReadinessProbeDefaults(t *testing.T) {
	p := NewReadinessProbe(0, 0)
	if p.Attempts != DefaultProbeAttempts {
		t.Errorf("默认探测次数 = %d, 期望 %d", p.Attempts, DefaultProbeAttempts)
	}
	if p.Interval != DefaultProbeInterval {
		t.Errorf("默认探测间隔 = %v, 期望 %v", p.Interval, DefaultProbeInterval)
	}

	p = NewReadinessProbe(20, 50*time.Millisecond)
	if p.Attempts != 20 || p.Interval != 50*time.Millisecond {
		t.Errorf("自定义参数 = (%d, %v)", p.Attempts, p.Interval)
	}
}

// TestBuildDebugReport 测试诊断报告生成
func TestBuildDebugReport(t *testing.T) {
	diag := &PageDiagnostics{
		URL:            "https://x.com/i/grok?conversation=42",
		Title:          "Grok",
		BodyTextLength: 1234,
		TestidCensus:   map[string]int{"primaryColumn": 1, "UserAvatar-x": 3},
		SelectorCounts: map[string]int{`div[dir="auto"]`: 12, `time[datetime]`: 3},
		Scrollables: []ScrollableInfo{
			{Testid: "primaryColumn", ScrollHeight: 5000, ClientHeight: 800},
			{Testid: "", ScrollHeight: 2000, ClientHeight: 600},
		},
	}

	report := BuildDebugReport(diag, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	for _, want := range []string{
		"=== Grok Export Debug Report ===",
		"https://x.com/i/grok?conversation=42",
		"正文长度: 1234",
		"primaryColumn",
		`div[dir="auto"]`,
		"scrollHeight=5000",
		"(无testid)",
		"OS/Arch:",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("报告缺少 %q\n完整报告:\n%s", want, report)
		}
	}

	// 两次生成的结构部分必须一致(map键已排序)
	again := BuildDebugReport(diag, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	if idx := strings.Index(report, "--- 运行环境 ---"); idx > 0 {
		if report[:idx] != again[:idx] {
			t.Error("报告结构部分不稳定, map键必须排序")
		}
	}
}
