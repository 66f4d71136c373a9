package crawlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
	"github.com/RecoveryAshes/GrokExporter/internal/utils"
	"github.com/go-rod/rod"
)

// 历史列表滚动参数
const (
	DefaultLinkScrollRetries = 15
	DefaultMaxLinks          = 10000
)

// conversationLinkSelector 历史列表中指向会话的锚点
const conversationLinkSelector = `a[href*="conversation="], a[href^="/i/grok/"]`

// harvestLinksJS 采集当前已渲染的会话链接href
const harvestLinksJS = `() => {
	var hrefs = [];
	document.querySelectorAll('a[href*="conversation="], a[href^="/i/grok/"]').forEach(function(a) {
		var href = a.getAttribute('href');
		if (href) hrefs.push(href);
	});
	return JSON.stringify(hrefs);
}`

// LinkSource 可滚动并产出链接的页面表面
type LinkSource interface {
	Surface
	// Hrefs 返回当前已渲染的会话链接href
	Hrefs() ([]string, error)
}

// LinkCollector 历史列表链接采集器
// 虚拟列表只渲染视口附近的条目, 必须边滚动边采集:
// 每轮滚动后立即收割可见链接并合并, 按首次出现顺序去重。
// 滚动的推进和停止交给ScrollDriver的计数规则, 计数值取链接集合的大小
type LinkCollector struct {
	source Surface
	hrefs  func() ([]string, error)

	// MaxLinks 链接总数上限, 防止异常页面导致无限滚动
	MaxLinks int
	// ScrollRetries 连续无新增的轮数上限
	ScrollRetries int
	// Interval 每轮滚动后的等待时间
	Interval time.Duration

	sleep func(time.Duration)
}

// NewLinkCollector 创建链接采集器
func NewLinkCollector(source LinkSource) *LinkCollector {
	return &LinkCollector{
		source:        source,
		hrefs:         source.Hrefs,
		MaxLinks:      DefaultMaxLinks,
		ScrollRetries: DefaultLinkScrollRetries,
		Interval:      100 * time.Millisecond,
		sleep:         time.Sleep,
	}
}

// harvestSurface 把链接收割包装成条目计数
// ScrollDriver每次读取条目数时都会先收割一轮可见链接
type harvestSurface struct {
	Surface
	harvest func() (int, error)
}

func (s *harvestSurface) ItemCount() (int, error) {
	return s.harvest()
}

// Collect 滚动采集历史列表中的全部会话链接
// 返回去重后的链接, 顺序为首次被发现的顺序
func (lc *LinkCollector) Collect(ctx context.Context) ([]models.ConversationLink, error) {
	seen := make(map[string]struct{})
	var links []models.ConversationLink

	harvest := func() (int, error) {
		hrefs, err := lc.hrefs()
		if err != nil {
			return len(links), fmt.Errorf("采集链接失败: %w", err)
		}
		for _, href := range hrefs {
			link, err := models.ParseConversationLink(href)
			if err != nil {
				continue
			}
			if _, dup := seen[link.ConversationID]; dup {
				continue
			}
			seen[link.ConversationID] = struct{}{}
			links = append(links, link)
		}
		return len(links), nil
	}

	driver := NewScrollDriver(&harvestSurface{Surface: lc.source, harvest: harvest}, lc.ScrollRetries)
	driver.Interval = lc.Interval
	driver.sleep = lc.sleep
	if _, err := driver.LoadAllByCount(ctx, lc.MaxLinks); err != nil {
		return links, err
	}

	if len(links) >= lc.MaxLinks {
		utils.Warnf("会话链接数已达上限%d, 停止采集", lc.MaxLinks)
	}
	utils.Infof("🔍 共采集到 %d 个会话链接", len(links))
	return links, nil
}

// PageLinkSource 由Rod页面支撑的链接采集表面
type PageLinkSource struct {
	*PageSurface
}

// NewPageLinkSource 基于历史列表页面创建链接采集表面
func NewPageLinkSource(page *rod.Page) *PageLinkSource {
	return &PageLinkSource{PageSurface: NewPageSurface(page, conversationLinkSelector)}
}

// Hrefs 收割当前已渲染的会话链接
func (s *PageLinkSource) Hrefs() ([]string, error) {
	result, err := s.page.Evaluate(&rod.EvalOptions{JS: harvestLinksJS})
	if err != nil {
		return nil, fmt.Errorf("执行链接采集脚本失败: %w", err)
	}
	var hrefs []string
	if err := json.Unmarshal([]byte(result.Value.Str()), &hrefs); err != nil {
		return nil, fmt.Errorf("解析链接列表失败: %w", err)
	}
	return hrefs, nil
}
