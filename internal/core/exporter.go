package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/GrokExporter/internal/crawlers"
	"github.com/RecoveryAshes/GrokExporter/internal/export"
	"github.com/RecoveryAshes/GrokExporter/internal/extract"
	"github.com/RecoveryAshes/GrokExporter/internal/models"
	"github.com/RecoveryAshes/GrokExporter/internal/storage"
	"github.com/RecoveryAshes/GrokExporter/internal/utils"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// Exporter 导出任务编排器
// 负责浏览器生命周期、链接收集、队列建立与状态机驱动;
// 单个会话的处理逻辑通过ProcessFunc挂接到状态机
type Exporter struct {
	config  *Config
	store   *storage.Store
	cache   *storage.DownloadCache
	sink    models.StatusSink
	browser *crawlers.Browser
	machine *StateMachine

	// limiter 控制连续导出的节奏, 避免触发访问频率限制
	limiter  *rate.Limiter
	reporter *utils.Reporter

	runID    string
	exported []utils.ExportedFileInfo
	bar      *progressbar.ProgressBar
}

// NewExporter 创建导出编排器
func NewExporter(config *Config, sink models.StatusSink) (*Exporter, error) {
	if err := config.Export.Validate(); err != nil {
		return nil, fmt.Errorf("导出配置无效: %w", err)
	}

	store, err := storage.NewStore(config.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	delay := time.Duration(config.Export.DownloadDelay) * time.Millisecond
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	e := &Exporter{
		config:   config,
		store:    store,
		cache:    storage.NewDownloadCache(store),
		sink:     sink,
		limiter:  rate.NewLimiter(rate.Every(delay), 1),
		reporter: utils.NewReporter(config.Export.OutputDir),
	}
	e.browser = crawlers.NewBrowser(crawlers.BrowserConfig{
		Headless:    config.Export.Headless,
		UserDataDir: config.Storage.UserDataDir,
	})
	e.machine = NewStateMachine(store, e.cache, sink, e.processChat)
	e.machine.MaxRetries = config.Export.MaxRetries
	return e, nil
}

// emit 非阻塞广播状态
func (e *Exporter) emit(done bool, status string) {
	if e.sink != nil {
		e.sink.Emit(models.StatusEvent{Status: status, Done: done, At: time.Now()})
	}
}

// ExportSingle 导出单个会话
// 前置条件: URL必须是会话页(带conversation参数或数字路径段);
// 不满足时立即广播终态, 不进入爬取
func (e *Exporter) ExportSingle(ctx context.Context, chatURL string) error {
	link, err := models.ParseConversationLink(chatURL)
	if err != nil {
		e.emit(true, "请先打开一个Grok会话页面")
		return fmt.Errorf("不是有效的会话链接: %w", err)
	}

	state, err := e.machine.Begin([]models.ConversationLink{link}, e.config.Export.Format, e.config.Export.AutoScroll)
	if errors.Is(err, ErrNothingToExport) {
		return nil
	}
	if err != nil {
		return err
	}
	e.runID = state.RunID
	return e.runQueue(ctx, state.Total)
}

// ExportAll 从历史列表页收集全部会话并批量导出
// historyURL为空时使用默认历史页; 收集到的链接清单另存为一份产物
func (e *Exporter) ExportAll(ctx context.Context, historyURL string) error {
	if historyURL == "" {
		historyURL = models.ChatHost + models.HistoryPath
	}
	if !models.IsHistoryURL(historyURL) {
		e.emit(true, "请先打开Grok历史列表页面")
		return fmt.Errorf("不是历史列表页: %s", historyURL)
	}

	if err := e.browser.Launch(); err != nil {
		return err
	}
	defer e.browser.Close()

	e.emit(false, "正在收集会话链接...")
	if err := e.browser.Navigate(historyURL); err != nil {
		return err
	}
	page, err := e.browser.Page()
	if err != nil {
		return err
	}

	collector := crawlers.NewLinkCollector(crawlers.NewPageLinkSource(page))
	collector.MaxLinks = e.config.Export.MaxLinks
	collector.ScrollRetries = e.config.Export.LinkScrollRetries
	links, err := collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("收集会话链接失败: %w", err)
	}
	if len(links) == 0 {
		e.emit(true, "历史列表中没有找到会话")
		return fmt.Errorf("历史列表中没有找到会话")
	}

	// 链接清单单独落盘, 供custom导出或事后核对
	now := time.Now()
	if path, err := export.WriteArtifact(e.config.Export.OutputDir, export.LinksFileName(now), export.LinksContent(links)); err != nil {
		utils.Warnf("写入链接清单失败: %v", err)
	} else {
		utils.Infof("📥 链接清单已保存: %s", path)
	}

	state, err := e.machine.Begin(links, e.config.Export.Format, e.config.Export.AutoScroll)
	if errors.Is(err, ErrNothingToExport) {
		return nil
	}
	if err != nil {
		return err
	}
	e.runID = state.RunID
	return e.runQueueWithBrowser(ctx, state.Total)
}

// ExportCustom 导出指定链接列表, 无法解析的链接跳过并告警
func (e *Exporter) ExportCustom(ctx context.Context, rawLinks []string) error {
	queue := make([]models.ConversationLink, 0, len(rawLinks))
	for _, raw := range rawLinks {
		link, err := models.ParseConversationLink(raw)
		if err != nil {
			utils.Warnf("跳过无法解析的链接: %s - %v", raw, err)
			continue
		}
		queue = append(queue, link)
	}
	if len(queue) == 0 {
		e.emit(true, "没有可导出的有效链接")
		return fmt.Errorf("没有可导出的有效链接")
	}

	state, err := e.machine.Begin(queue, e.config.Export.Format, e.config.Export.AutoScroll)
	if errors.Is(err, ErrNothingToExport) {
		return nil
	}
	if err != nil {
		return err
	}
	e.runID = state.RunID
	return e.runQueue(ctx, state.Total)
}

// ExportFromStaticPage 从静态页面(本地快照或镜像)收集链接并导出
// 收集走HTTP而非浏览器, 导出仍需浏览器
func (e *Exporter) ExportFromStaticPage(ctx context.Context, pageURL string) error {
	collector := crawlers.NewStaticLinkCollector(30 * time.Second)
	links, err := collector.Collect(pageURL)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		e.emit(true, "页面中没有找到会话链接")
		return fmt.Errorf("页面中没有找到会话链接: %s", pageURL)
	}

	state, err := e.machine.Begin(links, e.config.Export.Format, e.config.Export.AutoScroll)
	if errors.Is(err, ErrNothingToExport) {
		return nil
	}
	if err != nil {
		return err
	}
	e.runID = state.RunID
	return e.runQueue(ctx, state.Total)
}

// Resume 恢复上次未完成的导出任务
func (e *Exporter) Resume(ctx context.Context) error {
	state, err := e.machine.Resume()
	if err != nil {
		return err
	}
	e.runID = state.RunID
	return e.runQueue(ctx, state.Total)
}

// Cancel 取消进行中的导出任务
func (e *Exporter) Cancel() error {
	return e.machine.Cancel()
}

// ClearCache 清空下载缓存, 之后所有会话都会重新导出
func (e *Exporter) ClearCache() error {
	if err := e.cache.Clear(); err != nil {
		return fmt.Errorf("清空下载缓存失败: %w", err)
	}
	e.emit(true, "下载缓存已清空")
	utils.Info("✅ 下载缓存已清空")
	return nil
}

// Debug 采集目标页面的结构诊断并生成报告
// saveReport为true时把报告写入输出目录
func (e *Exporter) Debug(ctx context.Context, targetURL string, saveReport bool) (string, error) {
	if targetURL == "" {
		targetURL = models.ChatHost + models.HistoryPath
	}

	if err := e.browser.Launch(); err != nil {
		return "", err
	}
	defer e.browser.Close()

	if err := e.browser.Navigate(targetURL); err != nil {
		return "", err
	}
	page, err := e.browser.Page()
	if err != nil {
		return "", err
	}

	// 给渲染留出时间, 诊断场景不追求速度
	probe := crawlers.NewReadinessProbe(e.config.Export.ProbeAttempts, time.Duration(e.config.Export.ProbeInterval)*time.Millisecond)
	if err := probe.Wait(ctx, page); err != nil {
		utils.Warnf("页面未完全就绪, 仍继续采集诊断: %v", err)
	}

	diag, err := crawlers.CollectDiagnostics(page)
	if err != nil {
		return "", err
	}
	report := crawlers.BuildDebugReport(diag, time.Now())

	if saveReport {
		path, err := export.WriteArtifact(e.config.Export.OutputDir, export.DebugReportFileName(time.Now()), report)
		if err != nil {
			return report, err
		}
		utils.Infof("📥 诊断报告已保存: %s", path)
	}
	return report, nil
}

// runQueue 启动浏览器并驱动状态机走完队列
func (e *Exporter) runQueue(ctx context.Context, total int) error {
	if err := e.browser.Launch(); err != nil {
		return err
	}
	defer e.browser.Close()
	return e.runQueueWithBrowser(ctx, total)
}

// runQueueWithBrowser 在已启动的浏览器上驱动状态机走完队列
func (e *Exporter) runQueueWithBrowser(ctx context.Context, total int) error {
	e.exported = nil
	e.bar = utils.NewProgressBar(total, "导出会话")
	start := time.Now()

	runErr := e.machine.Run(ctx)

	stats := e.machine.Stats()
	failed := make([]string, 0)
	for _, link := range e.machine.FailedLinks() {
		failed = append(failed, link.ConversationID)
	}
	if err := e.reporter.GenerateReport(utils.ExportReport{
		RunID:         e.runID,
		Format:        string(e.config.Export.Format),
		StartTime:     start,
		EndTime:       time.Now(),
		Stats:         stats,
		ExportedFiles: e.exported,
		FailedIDs:     failed,
	}); err != nil {
		utils.Warnf("生成导出报告失败: %v", err)
	}
	return runErr
}

// processChat 处理单个会话(挂接到状态机的ProcessFunc)
// 导航 -> 就绪探测 -> 滚动加载 -> 快照 -> 解析 -> 序列化落盘
func (e *Exporter) processChat(ctx context.Context, link models.ConversationLink, state *models.CrawlQueueState) (ProcessResult, error) {
	// 导出节奏控制
	if err := e.limiter.Wait(ctx); err != nil {
		return ProcessResult{}, err
	}

	if err := e.browser.Navigate(link.Href); err != nil {
		return ProcessResult{}, err
	}
	// 重试时SPA对同URL的导航可能不触发重新渲染, 强制整页刷新
	if state.RetryCount > 0 {
		if err := e.browser.Reload(); err != nil {
			return ProcessResult{}, err
		}
	}
	page, err := e.browser.Page()
	if err != nil {
		return ProcessResult{}, err
	}

	probe := crawlers.NewReadinessProbe(e.config.Export.ProbeAttempts, time.Duration(e.config.Export.ProbeInterval)*time.Millisecond)
	if err := probe.Wait(ctx, page); err != nil {
		return ProcessResult{}, err
	}

	// 滚动加载完整会话历史
	if state.AutoScroll {
		driver := crawlers.NewScrollDriver(crawlers.NewPageSurface(page, ""), e.config.Export.ScrollRetries)
		if _, err := driver.LoadAllByHeight(ctx); err != nil {
			utils.Warnf("滚动加载未完成, 使用当前内容继续: %v", err)
		}
	}

	snap, err := extract.CaptureFromPage(page)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("采集页面快照失败: %w", err)
	}

	firstRole, levels, avatarTol, rowTol := e.config.ExtractOptions()
	messages := extract.Extract(snap, extract.Options{
		FirstRole:       firstRole,
		AvatarLevels:    levels,
		AvatarTolerance: avatarTol,
		RowTolerance:    rowTol,
	})
	if len(messages) == 0 {
		return ProcessResult{}, nil
	}

	now := time.Now()
	content, err := export.Serialize(link.ConversationID, messages, state.Format, now)
	if err != nil {
		return ProcessResult{}, err
	}
	path, err := export.WriteArtifact(e.config.Export.OutputDir, export.ChatFileName(link.ConversationID, state.Format, now), content)
	if err != nil {
		return ProcessResult{}, err
	}

	e.exported = append(e.exported, utils.ExportedFileInfo{
		ConversationID: link.ConversationID,
		FilePath:       path,
		MessageCount:   len(messages),
		ExportedAt:     now,
	})
	if e.bar != nil {
		_ = e.bar.Add(1)
	}
	return ProcessResult{Messages: len(messages), FilePath: path}, nil
}
