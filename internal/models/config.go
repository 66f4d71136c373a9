package models

import "fmt"

// ExportConfig 导出任务配置
type ExportConfig struct {
	Format        OutputFormat `json:"format" mapstructure:"format"`                 // 导出格式 (默认:markdown)
	AutoScroll    bool         `json:"auto_scroll" mapstructure:"auto_scroll"`       // 滚动加载完整历史 (默认:true)
	OutputDir     string       `json:"output_dir" mapstructure:"output_dir"`         // 输出目录 (默认:exports)
	DownloadDelay int          `json:"download_delay" mapstructure:"download_delay"` // 两次导出之间的最小间隔(毫秒) (默认:500)

	// 就绪探测
	ProbeAttempts int `json:"probe_attempts" mapstructure:"probe_attempts"` // 轮询次数 (默认:50)
	ProbeInterval int `json:"probe_interval" mapstructure:"probe_interval"` // 轮询间隔(毫秒) (默认:100)
	MaxRetries    int `json:"max_retries" mapstructure:"max_retries"`       // 单会话重载重试上限 (默认:3)

	// 滚动稳定
	ScrollRetries     int  `json:"scroll_retries" mapstructure:"scroll_retries"`           // 高度稳定判定的空转次数 (默认:3)
	LinkScrollRetries int  `json:"link_scroll_retries" mapstructure:"link_scroll_retries"` // 链接收集的空转次数 (默认:15)
	MaxLinks          int  `json:"max_links" mapstructure:"max_links"`                     // 链接收集安全上限 (默认:10000)
	Headless          bool `json:"headless" mapstructure:"headless"`                       // 无头浏览器模式 (默认:true)
}

// Validate 验证配置
func (c *ExportConfig) Validate() error {
	if !c.Format.Valid() {
		return fmt.Errorf("无效的导出格式: %s (可选: markdown|xml)", c.Format)
	}
	if c.ProbeAttempts < 1 || c.ProbeAttempts > 600 {
		return fmt.Errorf("探测次数必须在1-600之间, 当前值: %d", c.ProbeAttempts)
	}
	if c.ProbeInterval < 10 || c.ProbeInterval > 5000 {
		return fmt.Errorf("探测间隔必须在10-5000毫秒之间, 当前值: %d", c.ProbeInterval)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("重试上限必须在0-10之间, 当前值: %d", c.MaxRetries)
	}
	if c.ScrollRetries < 1 || c.ScrollRetries > 50 {
		return fmt.Errorf("滚动空转次数必须在1-50之间, 当前值: %d", c.ScrollRetries)
	}
	if c.LinkScrollRetries < 1 || c.LinkScrollRetries > 100 {
		return fmt.Errorf("链接收集空转次数必须在1-100之间, 当前值: %d", c.LinkScrollRetries)
	}
	if c.MaxLinks < 1 {
		return fmt.Errorf("链接安全上限必须为正数, 当前值: %d", c.MaxLinks)
	}
	return nil
}

// DefaultExportConfig 默认导出配置
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Format:            FormatMarkdown,
		AutoScroll:        true,
		OutputDir:         "exports",
		DownloadDelay:     500,
		ProbeAttempts:     50,
		ProbeInterval:     100,
		MaxRetries:        3,
		ScrollRetries:     3,
		LinkScrollRetries: 15,
		MaxLinks:          10000,
		Headless:          true,
	}
}
