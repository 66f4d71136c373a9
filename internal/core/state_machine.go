package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/GrokExporter/internal/crawlers"
	"github.com/RecoveryAshes/GrokExporter/internal/models"
	"github.com/RecoveryAshes/GrokExporter/internal/storage"
	"github.com/RecoveryAshes/GrokExporter/internal/utils"
)

// ErrNoActiveCrawl 存储中没有进行中的导出任务
var ErrNoActiveCrawl = errors.New("没有进行中的导出任务")

// ErrNothingToExport 队列中的会话全部命中下载缓存
var ErrNothingToExport = errors.New("所有会话均已导出")

// ProcessResult 单个会话的处理结果
type ProcessResult struct {
	Messages int    // 导出的消息数
	FilePath string // 产物路径
}

// ProcessFunc 处理单个会话: 导航到会话页、等待就绪、提取消息并落盘
// 实现方负责浏览器操作; 返回ErrPageNotReady表示页面未就绪, 状态机会安排原地重试
type ProcessFunc func(ctx context.Context, link models.ConversationLink, state *models.CrawlQueueState) (ProcessResult, error)

// StateMachine 导出队列状态机
//
// 核心约束: 状态机不依赖任何仅存在于内存的状态——每一步都先从持久化存储
// 重建队列状态, 处理恰好一个队列项, 再把全部变更落盘后才返回。
// 下一步的导航只会发生在落盘之后, 因此进程在任意步之间被打断,
// 都能用resume从存储无损恢复。
type StateMachine struct {
	store   *storage.Store
	cache   *storage.DownloadCache
	sink    models.StatusSink
	process ProcessFunc

	// MaxRetries 单个会话的原地重试上限
	MaxRetries int

	stats     models.ExportStats
	failed    []models.ConversationLink
	startedAt time.Time
}

// NewStateMachine 创建状态机
func NewStateMachine(store *storage.Store, cache *storage.DownloadCache, sink models.StatusSink, process ProcessFunc) *StateMachine {
	return &StateMachine{
		store:      store,
		cache:      cache,
		sink:       sink,
		process:    process,
		MaxRetries: 3,
		startedAt:  time.Now(),
	}
}

// emit 非阻塞广播状态
func (m *StateMachine) emit(done bool, status string) {
	if m.sink != nil {
		m.sink.Emit(models.StatusEvent{Status: status, Done: done, At: time.Now()})
	}
}

// emitf 非阻塞广播格式化状态
func (m *StateMachine) emitf(done bool, format string, args ...interface{}) {
	m.emit(done, fmt.Sprintf(format, args...))
}

// Begin 建立新的导出运行并持久化初始状态
// 队列先按会话ID去重, 再过滤掉已在下载缓存中的会话——持久化的队列只含
// 真正待导出的条目; 过滤后为空时直接广播终态并返回ErrNothingToExport,
// 不落盘任何状态。已有进行中的任务时返回错误
func (m *StateMachine) Begin(queue []models.ConversationLink, format models.OutputFormat, autoScroll bool) (*models.CrawlQueueState, error) {
	active, err := m.store.HasCrawlState()
	if err != nil {
		return nil, err
	}
	if active {
		return nil, fmt.Errorf("已有进行中的导出任务, 请先完成或取消")
	}

	deduped := models.DedupeLinks(queue)
	if len(deduped) == 0 {
		return nil, fmt.Errorf("队列中没有可导出的会话")
	}

	// 缓存过滤在持久化之前完成
	remaining := make([]models.ConversationLink, 0, len(deduped))
	cached := 0
	for _, link := range deduped {
		hit, err := m.cache.Has(link.ConversationID)
		if err != nil {
			return nil, err
		}
		if hit {
			cached++
			continue
		}
		remaining = append(remaining, link)
	}
	if cached > 0 {
		m.emitf(false, "找到 %d 个会话, 其中 %d 个已导出, 待导出 %d 个", len(deduped), cached, len(remaining))
	}

	m.stats = models.ExportStats{TotalChats: len(remaining), Skipped: cached}
	m.startedAt = time.Now()

	if len(remaining) == 0 {
		m.emit(true, "所有会话均已导出, 无需处理")
		utils.Infof("✅ 队列中 %d 个会话全部已导出, 无需处理", len(deduped))
		return nil, ErrNothingToExport
	}

	state := models.NewCrawlQueueState(models.GenerateRunID(), remaining, format, autoScroll)
	if err := m.store.SaveCrawlState(state); err != nil {
		return nil, fmt.Errorf("持久化初始状态失败: %w", err)
	}

	m.emitf(false, "开始导出 %d 个会话...", len(remaining))
	utils.Infof("🚀 导出任务已建立: %d 个会话, 格式=%s, run_id=%s", len(remaining), format, state.RunID)
	return state, nil
}

// Resume 恢复已持久化的导出任务
// 只校验状态存在并重置统计起点, 队列推进仍由Step完成
func (m *StateMachine) Resume() (*models.CrawlQueueState, error) {
	state, ok, err := m.store.LoadCrawlState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoActiveCrawl
	}
	m.stats = models.ExportStats{TotalChats: state.Total}
	m.startedAt = time.Now()
	m.emitf(false, "恢复导出任务: 进度 %d/%d", state.Index, state.Total)
	utils.Infof("🚀 恢复导出任务: run_id=%s, 进度=%d/%d", state.RunID, state.Index, state.Total)
	return state, nil
}

// Cancel 取消进行中的导出任务并清除全部状态
// 下载缓存保留: 已导出的会话在下次运行中仍会被跳过
func (m *StateMachine) Cancel() error {
	active, err := m.store.HasCrawlState()
	if err != nil {
		return err
	}
	if !active {
		return ErrNoActiveCrawl
	}
	if err := m.store.ClearCrawlState(); err != nil {
		return fmt.Errorf("清除导出状态失败: %w", err)
	}
	m.emit(true, "导出已取消")
	utils.Info("导出任务已取消")
	return nil
}

// Step 推进状态机一步: 重建状态 -> 处理一个队列项 -> 落盘
// 返回true表示导出已终结(完成、取消或不可恢复错误)
func (m *StateMachine) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}

	// 每一步都从存储重建, 不信任内存状态
	state, ok, err := m.store.LoadCrawlState()
	if err != nil {
		return true, err
	}
	if !ok {
		return true, ErrNoActiveCrawl
	}

	// 队列走完: 进入失败重试趟或终结
	if state.Drained() {
		if !state.RetryMode && len(state.Failed) > 0 {
			state.SwapToRetryPass()
			if err := m.store.SaveCrawlState(state); err != nil {
				return true, err
			}
			m.emitf(false, "开始重试 %d 个失败会话...", len(state.Queue))
			utils.Warnf("进入失败重试趟: %d 个会话", len(state.Queue))
			return false, nil
		}
		return true, m.finish(state)
	}

	link, _ := state.Current()
	position := state.Index + 1

	// 缓存命中快路径: 建队时已过滤过一轮, 这里兜底建队之后才记入缓存的
	// 会话(典型场景是中断恢复); 重试趟强制重新导出
	if !state.RetryMode {
		cached, err := m.cache.Has(link.ConversationID)
		if err != nil {
			return true, err
		}
		if cached {
			m.stats.Skipped++
			m.emitf(false, "跳过已导出会话 %d/%d (ID: %s)", position, state.Total, link.ConversationID)
			utils.Debugf("缓存命中, 跳过会话: %s", link.ConversationID)
			return false, m.advance(state)
		}
	}

	m.emitf(false, "正在导出会话 %d/%d...", position, state.Total)

	result, procErr := m.safeProcess(ctx, link, state)

	if procErr != nil {
		return m.handleFailure(state, link, position, procErr)
	}
	if result.Messages == 0 {
		// 空会话不做原地重试, 直接进失败列表等队尾重试趟
		return m.handleFailure(state, link, position, fmt.Errorf("未能提取到任何消息"))
	}

	// 成功: 记入缓存, 重试趟中同时移出失败列表
	if err := m.cache.Add(link.ConversationID); err != nil {
		return true, fmt.Errorf("更新下载缓存失败: %w", err)
	}
	if state.RetryMode {
		state.RemoveFailed(link.ConversationID)
	}
	m.stats.Exported++
	m.stats.TotalMessages += result.Messages
	m.emitf(false, "✅ 已导出会话 %d/%d (%d条消息)", position, state.Total, result.Messages)
	utils.Infof("✅ 会话导出成功: ID=%s, 消息数=%d, 文件=%s", link.ConversationID, result.Messages, result.FilePath)
	return false, m.advance(state)
}

// Run 循环推进状态机直到终结
func (m *StateMachine) Run(ctx context.Context) error {
	for {
		done, err := m.Step(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// safeProcess 带panic恢复地执行会话处理
// 浏览器操作的panic在此转为错误, 单个会话崩溃不拖垮整个队列
func (m *StateMachine) safeProcess(ctx context.Context, link models.ConversationLink, state *models.CrawlQueueState) (result ProcessResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("会话处理panic: ID=%s, 错误=%v", link.ConversationID, r)
			err = fmt.Errorf("会话处理panic: %v: %w", r, crawlers.ErrBrowserCrashed)
		}
	}()
	return m.process(ctx, link, state)
}

// handleFailure 处理会话失败: 未就绪时原地重试, 其余进失败列表
func (m *StateMachine) handleFailure(state *models.CrawlQueueState, link models.ConversationLink, position int, procErr error) (bool, error) {
	if errors.Is(procErr, crawlers.ErrPageNotReady) && state.RetryCount < m.MaxRetries {
		if state.RetryCount == 0 {
			m.stats.Retried++
		}
		state.RetryCount++
		m.emitf(false, "会话加载失败, 正在重试 (%d/%d)...", state.RetryCount, m.MaxRetries)
		utils.Warnf("会话未就绪, 安排重试: ID=%s, 重试=%d/%d", link.ConversationID, state.RetryCount, m.MaxRetries)
		// 游标不动, 落盘后下一步会重新导航到同一会话
		return false, m.store.SaveCrawlState(state)
	}

	state.AddFailed(link)
	m.emitf(false, "导出会话 %d/%d 失败 (ID: %s): %v", position, state.Total, link.ConversationID, procErr)
	utils.Errorf("会话导出失败: ID=%s, 错误=%v", link.ConversationID, procErr)
	return false, m.advance(state)
}

// advance 推进游标并落盘
func (m *StateMachine) advance(state *models.CrawlQueueState) error {
	state.Index++
	state.RetryCount = 0
	return m.store.SaveCrawlState(state)
}

// finish 终结导出: 汇总统计, 清除全部爬取状态, 广播终态
func (m *StateMachine) finish(state *models.CrawlQueueState) error {
	m.stats.Failed = len(state.Failed)
	m.stats.Duration = time.Since(m.startedAt).Seconds()
	m.failed = state.Failed

	if err := m.store.ClearCrawlState(); err != nil {
		return fmt.Errorf("清除导出状态失败: %w", err)
	}

	if m.stats.Failed > 0 {
		m.emitf(true, "导出完成: 成功 %d, 跳过 %d, 失败 %d", m.stats.Exported, m.stats.Skipped, m.stats.Failed)
	} else {
		m.emitf(true, "导出完成: 成功 %d, 跳过 %d", m.stats.Exported, m.stats.Skipped)
	}
	utils.Infof("✅ 导出任务结束: 成功=%d, 跳过=%d, 失败=%d, 消息总数=%d, 耗时=%.2f秒",
		m.stats.Exported, m.stats.Skipped, m.stats.Failed, m.stats.TotalMessages, m.stats.Duration)
	return nil
}

// Stats 返回当前统计
func (m *StateMachine) Stats() models.ExportStats {
	return m.stats
}

// FailedLinks 返回终结时记录的失败会话
func (m *StateMachine) FailedLinks() []models.ConversationLink {
	return m.failed
}
