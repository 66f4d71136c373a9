package crawlers

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/RecoveryAshes/GrokExporter/internal/utils"
	"github.com/go-rod/rod"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// 内容就绪探测参数
const (
	DefaultProbeAttempts = 50
	DefaultProbeInterval = 100 * time.Millisecond
)

// readinessJS 判断会话内容是否已渲染
// 三个信号任意命中即视为就绪: 用户头像、引用来源卡片、正文文本量
const readinessJS = `() => {
	if (document.querySelector('[data-testid*="UserAvatar"]')) return true;
	if (document.querySelector('[data-testid="grok_citation_web_result"]')) return true;
	var column = document.querySelector('[data-testid="primaryColumn"]');
	if (column && column.innerText && column.innerText.trim().length > 50) return true;
	return false;
}`

// ReadinessProbe 会话内容就绪探测器
type ReadinessProbe struct {
	Attempts int
	Interval time.Duration

	sleep func(time.Duration)
}

// NewReadinessProbe 创建就绪探测器
func NewReadinessProbe(attempts int, interval time.Duration) *ReadinessProbe {
	if attempts <= 0 {
		attempts = DefaultProbeAttempts
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &ReadinessProbe{Attempts: attempts, Interval: interval, sleep: time.Sleep}
}

// Wait 轮询直到会话内容就绪或尝试耗尽
// 耗尽后返回ErrPageNotReady, 调用方据此决定重载或标记失败
func (p *ReadinessProbe) Wait(ctx context.Context, page *rod.Page) error {
	for i := 0; i < p.Attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := page.Evaluate(&rod.EvalOptions{JS: readinessJS})
		if err != nil {
			utils.Debugf("就绪探测执行失败(第%d次): %v", i+1, err)
		} else if result.Value.Bool() {
			utils.Debugf("会话内容已就绪(第%d次探测)", i+1)
			return nil
		}

		p.sleep(p.Interval)
	}
	return fmt.Errorf("探测%d次后仍无会话内容: %w", p.Attempts, ErrPageNotReady)
}

// debugJS 采集页面结构诊断数据
const debugJS = `() => {
	var census = {};
	document.querySelectorAll('[data-testid]').forEach(function(el) {
		var id = el.getAttribute('data-testid');
		census[id] = (census[id] || 0) + 1;
	});

	var selectors = [
		'[data-testid="primaryColumn"]',
		'[data-testid*="UserAvatar"]',
		'[data-testid="grok_citation_web_result"]',
		'div[dir="auto"]',
		'div[dir="ltr"]',
		'span[dir="auto"]',
		'a[href*="conversation="]',
		'time[datetime]'
	];
	var counts = {};
	selectors.forEach(function(sel) {
		counts[sel] = document.querySelectorAll(sel).length;
	});

	var scrollables = [];
	document.querySelectorAll('div').forEach(function(el) {
		if (el.scrollHeight > el.clientHeight + 100 && scrollables.length < 20) {
			scrollables.push({
				testid: el.getAttribute('data-testid') || '',
				scrollHeight: el.scrollHeight,
				clientHeight: el.clientHeight
			});
		}
	});

	return JSON.stringify({
		url: window.location.href,
		title: document.title,
		bodyTextLength: document.body.innerText ? document.body.innerText.length : 0,
		testidCensus: census,
		selectorCounts: counts,
		scrollables: scrollables
	});
}`

// PageDiagnostics 页面结构诊断数据
type PageDiagnostics struct {
	URL            string           `json:"url"`
	Title          string           `json:"title"`
	BodyTextLength int              `json:"bodyTextLength"`
	TestidCensus   map[string]int   `json:"testidCensus"`
	SelectorCounts map[string]int   `json:"selectorCounts"`
	Scrollables    []ScrollableInfo `json:"scrollables"`
}

// ScrollableInfo 可滚动元素信息
type ScrollableInfo struct {
	Testid       string `json:"testid"`
	ScrollHeight int    `json:"scrollHeight"`
	ClientHeight int    `json:"clientHeight"`
}

// CollectDiagnostics 采集当前页面的结构诊断数据
func CollectDiagnostics(page *rod.Page) (*PageDiagnostics, error) {
	result, err := page.Evaluate(&rod.EvalOptions{JS: debugJS})
	if err != nil {
		return nil, fmt.Errorf("执行诊断脚本失败: %w", err)
	}
	var diag PageDiagnostics
	if err := json.Unmarshal([]byte(result.Value.Str()), &diag); err != nil {
		return nil, fmt.Errorf("解析诊断数据失败: %w", err)
	}
	return &diag, nil
}

// BuildDebugReport 生成文本格式的诊断报告
// 页面结构数据之外附带运行环境信息, 便于排查无头环境下的渲染差异
func BuildDebugReport(diag *PageDiagnostics, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("=== Grok Export Debug Report ===\n")
	fmt.Fprintf(&b, "生成时间: %s\n", generatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "页面URL: %s\n", diag.URL)
	fmt.Fprintf(&b, "页面标题: %s\n", diag.Title)
	fmt.Fprintf(&b, "正文长度: %d\n\n", diag.BodyTextLength)

	b.WriteString("--- 选择器命中数 ---\n")
	for _, sel := range sortedKeys(diag.SelectorCounts) {
		fmt.Fprintf(&b, "%-55s %d\n", sel, diag.SelectorCounts[sel])
	}

	b.WriteString("\n--- data-testid 分布 ---\n")
	for _, id := range sortedKeys(diag.TestidCensus) {
		fmt.Fprintf(&b, "%-35s %d\n", id, diag.TestidCensus[id])
	}

	b.WriteString("\n--- 可滚动容器 ---\n")
	for _, s := range diag.Scrollables {
		name := s.Testid
		if name == "" {
			name = "(无testid)"
		}
		fmt.Fprintf(&b, "%-35s scrollHeight=%d clientHeight=%d\n", name, s.ScrollHeight, s.ClientHeight)
	}

	b.WriteString("\n--- 运行环境 ---\n")
	fmt.Fprintf(&b, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "CPU核数: %d\n", runtime.NumCPU())
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(&b, "内存: 总计%dMB, 可用%dMB (%.1f%%已用)\n",
			vm.Total/1024/1024, vm.Available/1024/1024, vm.UsedPercent)
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		fmt.Fprintf(&b, "CPU使用率: %.1f%%\n", percents[0])
	}

	return b.String()
}

// sortedKeys 返回按字典序排列的map键
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// 保持报告输出稳定
	sort.Strings(keys)
	return keys
}
