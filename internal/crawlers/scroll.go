package crawlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/RecoveryAshes/GrokExporter/internal/utils"
	"github.com/go-rod/rod"
)

// ScrollMetrics 滚动容器的当前位置信息
type ScrollMetrics struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

// Surface 可滚动的页面表面
// 把滚动驱动逻辑与浏览器解耦, 测试时用内存实现模拟懒加载容器
type Surface interface {
	// Metrics 返回当前滚动位置
	Metrics() (ScrollMetrics, error)
	// ScrollToBottom 滚动到容器底部
	ScrollToBottom() error
	// ScrollBy 按偏移量滚动(负数向上)
	ScrollBy(delta float64) error
	// ItemCount 返回容器内已加载的条目数
	ItemCount() (int, error)
}

// ScrollDriver 懒加载滚动驱动
// 反复滚动到底部并观察容器变化, 连续数轮无变化后判定内容加载完毕
type ScrollDriver struct {
	surface Surface
	// MaxRetries 连续无变化的轮数上限
	MaxRetries int
	// Interval 每轮滚动后等待页面追加内容的时间
	Interval time.Duration
	// BottomTolerance 判定已到底部的像素容差
	BottomTolerance float64

	// sleep 可注入, 测试时跳过真实等待
	sleep func(time.Duration)
}

// NewScrollDriver 创建滚动驱动
func NewScrollDriver(surface Surface, maxRetries int) *ScrollDriver {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ScrollDriver{
		surface:         surface,
		MaxRetries:      maxRetries,
		Interval:        100 * time.Millisecond,
		BottomTolerance: 50,
		sleep:           time.Sleep,
	}
}

// atBottom 判断当前是否已滚动到底部(容差内)
func atBottom(m ScrollMetrics, tolerance float64) bool {
	return m.ScrollTop+m.ClientHeight >= m.ScrollHeight-tolerance
}

// LoadAllByHeight 按容器高度变化驱动滚动, 用于加载长会话
// 连续MaxRetries轮高度不变且已在底部时结束, 返回滚动轮数
func (d *ScrollDriver) LoadAllByHeight(ctx context.Context) (int, error) {
	retries := 0
	rounds := 0
	lastHeight := math.Inf(-1)

	for retries < d.MaxRetries {
		if err := ctx.Err(); err != nil {
			return rounds, err
		}

		if err := d.surface.ScrollToBottom(); err != nil {
			return rounds, fmt.Errorf("滚动到底部失败: %w", err)
		}
		rounds++
		d.sleep(d.Interval)

		m, err := d.surface.Metrics()
		if err != nil {
			return rounds, fmt.Errorf("读取滚动位置失败: %w", err)
		}

		if m.ScrollHeight == lastHeight && atBottom(m, d.BottomTolerance) {
			retries++
		} else {
			retries = 0
		}
		lastHeight = m.ScrollHeight
	}

	utils.Debugf("滚动加载完成: 共%d轮, 最终高度%.0f", rounds, lastHeight)
	return rounds, nil
}

// LoadAllByCount 按条目数变化驱动滚动, 用于加载历史列表
// 条目数停滞时先回滚一段再触底(抖动), 促使虚拟列表重新渲染;
// 达到maxItems上限或连续MaxRetries轮无新增时结束, 返回最终条目数
func (d *ScrollDriver) LoadAllByCount(ctx context.Context, maxItems int) (int, error) {
	retries := 0
	lastCount := -1

	for retries < d.MaxRetries {
		if err := ctx.Err(); err != nil {
			return lastCount, err
		}

		count, err := d.surface.ItemCount()
		if err != nil {
			return lastCount, fmt.Errorf("统计条目数失败: %w", err)
		}
		if maxItems > 0 && count >= maxItems {
			utils.Warnf("条目数已达上限%d, 停止滚动", maxItems)
			return count, nil
		}

		if count == lastCount {
			retries++
			// 抖动: 向上回滚再触底
			if err := d.surface.ScrollBy(-500); err != nil {
				return count, fmt.Errorf("回滚失败: %w", err)
			}
			d.sleep(d.Interval)
		} else {
			retries = 0
		}
		lastCount = count

		if err := d.surface.ScrollToBottom(); err != nil {
			return count, fmt.Errorf("滚动到底部失败: %w", err)
		}
		d.sleep(d.Interval)
	}

	utils.Debugf("列表滚动加载完成: 共%d条", lastCount)
	return lastCount, nil
}

// scrollTargetJS 滚动目标选择
// 会话正文和历史列表都渲染在内层overflow-y容器里, 滚动整页视口不会触发
// 懒加载。选择顺序: 主内容容器自身可滚动 -> 种子元素(条目选择器命中的
// 首个元素)最近的可滚动祖先 -> 整页视口兜底
const scrollTargetJS = `
	var pickScrollTarget = function(seedSelector) {
		var column = document.querySelector('[data-testid="primaryColumn"]');
		if (column && column.scrollHeight > column.clientHeight) return column;
		var seed = (seedSelector && document.querySelector(seedSelector)) || column;
		for (var cur = seed; cur && cur !== document.body; cur = cur.parentElement) {
			var style = window.getComputedStyle(cur);
			if ((style.overflowY === 'auto' || style.overflowY === 'scroll') &&
				cur.scrollHeight > cur.clientHeight) {
				return cur;
			}
		}
		return document.scrollingElement || document.documentElement;
	};`

const metricsJS = `(seed) => {` + scrollTargetJS + `
	var el = pickScrollTarget(seed);
	return JSON.stringify({ top: el.scrollTop, height: el.scrollHeight, client: el.clientHeight });
}`

const scrollToBottomJS = `(seed) => {` + scrollTargetJS + `
	var el = pickScrollTarget(seed);
	el.scrollTop = el.scrollHeight;
}`

const scrollByJS = `(seed, delta) => {` + scrollTargetJS + `
	var el = pickScrollTarget(seed);
	el.scrollTop = Math.max(0, el.scrollTop + delta);
}`

// PageSurface 由Rod页面支撑的滚动表面
// 所有滚动操作都作用在pickScrollTarget选出的容器上, 而不是整页视口
type PageSurface struct {
	page *rod.Page
	// ItemSelector 统计条目数用的选择器, 同时作为滚动目标选择的种子
	ItemSelector string
}

// NewPageSurface 创建页面滚动表面
func NewPageSurface(page *rod.Page, itemSelector string) *PageSurface {
	return &PageSurface{page: page, ItemSelector: itemSelector}
}

// evalFloat 执行JS并取数值结果
func (s *PageSurface) evalFloat(js string) (float64, error) {
	result, err := s.page.Evaluate(&rod.EvalOptions{JS: js})
	if err != nil {
		return 0, err
	}
	return result.Value.Num(), nil
}

// Metrics 读取滚动容器的当前位置
func (s *PageSurface) Metrics() (ScrollMetrics, error) {
	result, err := s.page.Evaluate(&rod.EvalOptions{
		JS:     metricsJS,
		JSArgs: []interface{}{s.ItemSelector},
	})
	if err != nil {
		return ScrollMetrics{}, fmt.Errorf("读取滚动位置失败: %w", err)
	}
	parsed := result.Value.Str()
	var raw struct {
		Top    float64 `json:"top"`
		Height float64 `json:"height"`
		Client float64 `json:"client"`
	}
	if err := json.Unmarshal([]byte(parsed), &raw); err != nil {
		return ScrollMetrics{}, fmt.Errorf("解析滚动位置失败: %w", err)
	}
	return ScrollMetrics{ScrollTop: raw.Top, ScrollHeight: raw.Height, ClientHeight: raw.Client}, nil
}

// ScrollToBottom 滚动容器到底部
func (s *PageSurface) ScrollToBottom() error {
	_, err := s.page.Evaluate(&rod.EvalOptions{
		JS:     scrollToBottomJS,
		JSArgs: []interface{}{s.ItemSelector},
	})
	if err != nil {
		return fmt.Errorf("滚动到底部失败: %w", err)
	}
	return nil
}

// ScrollBy 按偏移量滚动容器
func (s *PageSurface) ScrollBy(delta float64) error {
	_, err := s.page.Evaluate(&rod.EvalOptions{
		JS:     scrollByJS,
		JSArgs: []interface{}{s.ItemSelector, delta},
	})
	if err != nil {
		return fmt.Errorf("滚动失败: %w", err)
	}
	return nil
}

// ItemCount 统计页面内匹配选择器的条目数
func (s *PageSurface) ItemCount() (int, error) {
	count, err := s.evalFloat(fmt.Sprintf(`() => document.querySelectorAll(%q).length`, s.ItemSelector))
	if err != nil {
		return 0, fmt.Errorf("统计条目数失败: %w", err)
	}
	return int(count), nil
}
