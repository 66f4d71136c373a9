package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/GrokExporter/internal/core"
	"github.com/RecoveryAshes/GrokExporter/internal/models"
	"github.com/RecoveryAshes/GrokExporter/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 导出参数
	chatURL    string
	exportAll  bool
	historyURL string
	linksFile  string
	links      []string
	staticPage string
	format     string
	autoScroll bool
	headless   bool
	outputDir  string
	resume     bool
)

var rootCmd = &cobra.Command{
	Use:   "grokexport",
	Short: "Grok会话导出工具",
	Long: `GrokExporter - Grok会话批量导出工具 (Go版本)

驱动无头浏览器打开x.com/i/grok会话页面,从渲染后的DOM恢复完整对话,
导出为Markdown或XML文档,支持:
  • 单会话导出和历史全量批量导出
  • 自定义链接列表导出(文件或命令行)
  • 滚动加载完整会话历史
  • 队列状态持久化,中断后可恢复
  • 已导出会话自动跳过(下载缓存)
  • 失败会话的队尾重试趟

使用示例:
  # 导出单个会话
  grokexport -u "https://x.com/i/grok?conversation=123456"

  # 批量导出全部历史会话
  grokexport --all

  # 从链接文件批量导出
  grokexport --links-file links.txt --format xml

  # 恢复上次中断的导出
  grokexport --resume

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 初始化日志系统: 默认值打底, 配置文件覆盖
		logConfig := utils.DefaultLogConfig()
		if config.Logging.Level != "" {
			logConfig.Level = config.Logging.Level
		}
		if config.Logging.LogDir != "" {
			logConfig.LogDir = config.Logging.LogDir
		}
		if config.Logging.Rotation.MaxSize > 0 {
			logConfig.MaxSize = config.Logging.Rotation.MaxSize
		}
		if config.Logging.Rotation.MaxBackups > 0 {
			logConfig.MaxBackups = config.Logging.Rotation.MaxBackups
		}
		if config.Logging.Rotation.MaxAge > 0 {
			logConfig.MaxAge = config.Logging.Rotation.MaxAge
		}
		logConfig.Compress = config.Logging.Rotation.Compress

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// 没有指定任何导出来源时显示帮助
		if chatURL == "" && !exportAll && linksFile == "" && len(links) == 0 && staticPage == "" && !resume {
			return cmd.Help()
		}

		// 验证参数
		if err := ValidateFlags(chatURL, linksFile, links, staticPage, format); err != nil {
			return err
		}

		exporter, sink, err := buildExporter()
		if err != nil {
			return err
		}

		// 信号处理(Ctrl+C中止当前步, 状态已落盘可resume)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			utils.Warnf("收到中断信号: %v, 当前进度已持久化, 可用--resume恢复", sig)
			cancel()
		}()

		// 状态事件输出
		go func() {
			for event := range sink.C {
				fmt.Printf("[状态] %s\n", event.Status)
			}
		}()
		defer sink.Close()

		switch {
		case resume:
			err = exporter.Resume(ctx)
		case exportAll:
			err = exporter.ExportAll(ctx, historyURL)
		case staticPage != "":
			err = exporter.ExportFromStaticPage(ctx, staticPage)
		case linksFile != "":
			var raw []string
			raw, err = utils.ReadLinksFromFile(linksFile)
			if err != nil {
				return fmt.Errorf("读取链接文件失败: %w", err)
			}
			err = exporter.ExportCustom(ctx, raw)
		case len(links) > 0:
			err = exporter.ExportCustom(ctx, links)
		default:
			err = exporter.ExportSingle(ctx, chatURL)
		}
		if err != nil {
			return fmt.Errorf("导出失败: %w", err)
		}

		utils.Info("✨ 导出任务完成!")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("GrokExporter %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("Go实现版本 - Grok会话批量导出工具")
	},
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "清空下载缓存",
	Long:  "清空已导出会话的记录, 之后所有会话都会重新导出",
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, sink, err := buildExporter()
		if err != nil {
			return err
		}
		defer sink.Close()
		return exporter.ClearCache()
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "取消进行中的导出任务",
	Long:  "清除已持久化的队列状态; 下载缓存保留, 已导出的会话下次仍会被跳过",
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, sink, err := buildExporter()
		if err != nil {
			return err
		}
		defer sink.Close()
		if err := exporter.Cancel(); err != nil {
			return err
		}
		utils.Info("✅ 导出任务已取消")
		return nil
	},
}

var (
	debugURL        string
	debugSaveReport bool
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "采集页面结构诊断报告",
	Long:  "打开目标页面并输出选择器命中情况、data-testid分布和可滚动容器清单, 用于排查提取失败",
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, sink, err := buildExporter()
		if err != nil {
			return err
		}
		defer sink.Close()

		report, err := exporter.Debug(context.Background(), debugURL, debugSaveReport)
		if err != nil {
			return fmt.Errorf("采集诊断失败: %w", err)
		}
		fmt.Println(report)
		return nil
	},
}

// buildExporter 加载配置并组装导出器
func buildExporter() (*core.Exporter, *models.ChannelSink, error) {
	config, err := core.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	config.MergeCLIFlags(format, autoScroll, headless, outputDir)

	sink := models.NewChannelSink(64)
	exporter, err := core.NewExporter(config, sink)
	if err != nil {
		return nil, nil, fmt.Errorf("创建导出器失败: %w", err)
	}
	return exporter, sink, nil
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// 导出参数
	rootCmd.Flags().StringVarP(&chatURL, "url", "u", "", "单个会话页URL")
	rootCmd.Flags().BoolVarP(&exportAll, "all", "a", false, "导出历史列表中的全部会话")
	rootCmd.Flags().StringVar(&historyURL, "history-url", "", "历史列表页URL (默认: https://x.com/i/grok)")
	rootCmd.Flags().StringVarP(&linksFile, "links-file", "f", "", "包含会话链接列表的文件路径")
	rootCmd.Flags().StringSliceVarP(&links, "links", "l", []string{}, "会话链接, 可多次指定")
	rootCmd.Flags().StringVar(&staticPage, "static-page", "", "静态页面URL(本地快照或镜像), 通过HTTP收集链接")
	rootCmd.Flags().StringVarP(&format, "format", "F", "", "导出格式 (markdown|xml)")
	rootCmd.Flags().BoolVar(&autoScroll, "auto-scroll", true, "导出前滚动加载完整会话历史")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录 (默认: exports)")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "恢复上次中断的导出任务")

	// debug子命令参数
	debugCmd.Flags().StringVarP(&debugURL, "url", "u", "", "诊断目标URL (默认: 历史列表页)")
	debugCmd.Flags().BoolVar(&debugSaveReport, "save-report", false, "把诊断报告保存到输出目录")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(clearCacheCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(debugCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
