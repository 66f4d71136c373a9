// Package core 实现导出状态机与任务编排
package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Export  models.ExportConfig `mapstructure:"export"`
	Extract ExtractConfig       `mapstructure:"extract"`
	Logging LoggingConfig       `mapstructure:"logging"`
	Storage StorageConfig       `mapstructure:"storage"`
}

// ExtractConfig 消息解析配置
type ExtractConfig struct {
	// FirstRole 无头像证据时交替分配的起始角色 (User|Grok)
	FirstRole string `mapstructure:"first_role"`
	// AvatarLevels 向上搜索头像的祖先层数
	AvatarLevels int `mapstructure:"avatar_levels"`
	// AvatarTolerance 头像与消息的垂直距离容差(像素)
	AvatarTolerance float64 `mapstructure:"avatar_tolerance"`
	// RowTolerance 同一行判定的纵坐标容差(像素)
	RowTolerance float64 `mapstructure:"row_tolerance"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// StorageConfig 持久化存储配置
type StorageConfig struct {
	// Path 状态存储文件路径
	Path string `mapstructure:"path"`
	// UserDataDir 浏览器用户数据目录(保留登录态)
	UserDataDir string `mapstructure:"user_data_dir"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件
	if configPath != "" {
		// 使用指定的配置文件
		v.SetConfigFile(configPath)
	} else {
		// 搜索默认位置
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// 添加配置搜索路径
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		// 用户主目录
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".grokexport"))
		}
	}

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// 如果配置文件不存在,使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	// 解析配置
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 导出配置默认值以models侧的定义为准, 避免两处漂移
	def := models.DefaultExportConfig()
	v.SetDefault("export.format", string(def.Format))
	v.SetDefault("export.auto_scroll", def.AutoScroll)
	v.SetDefault("export.output_dir", def.OutputDir)
	v.SetDefault("export.download_delay", def.DownloadDelay)
	v.SetDefault("export.probe_attempts", def.ProbeAttempts)
	v.SetDefault("export.probe_interval", def.ProbeInterval)
	v.SetDefault("export.max_retries", def.MaxRetries)
	v.SetDefault("export.scroll_retries", def.ScrollRetries)
	v.SetDefault("export.link_scroll_retries", def.LinkScrollRetries)
	v.SetDefault("export.max_links", def.MaxLinks)
	v.SetDefault("export.headless", def.Headless)

	// 消息解析默认值
	v.SetDefault("extract.first_role", string(models.RoleUser))
	v.SetDefault("extract.avatar_levels", 8)
	v.SetDefault("extract.avatar_tolerance", 150)
	v.SetDefault("extract.row_tolerance", 10)

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 存储配置默认值
	v.SetDefault("storage.path", filepath.Join("exports", "state.json"))
	v.SetDefault("storage.user_data_dir", "")
}

// MergeCLIFlags 合并命令行参数到配置
// 命令行参数优先于配置文件
func (c *Config) MergeCLIFlags(format string, autoScroll bool, headless bool, outputDir string) {
	if format != "" {
		c.Export.Format = models.OutputFormat(format)
	}
	c.Export.AutoScroll = autoScroll
	c.Export.Headless = headless
	if outputDir != "" {
		c.Export.OutputDir = outputDir
	}
}

// ExtractOptions 把解析配置转换为提取器参数
func (c *Config) ExtractOptions() (firstRole models.Role, levels int, avatarTol, rowTol float64) {
	firstRole = models.Role(c.Extract.FirstRole)
	if firstRole != models.RoleUser && firstRole != models.RoleAssistant {
		firstRole = models.RoleUser
	}
	return firstRole, c.Extract.AvatarLevels, c.Extract.AvatarTolerance, c.Extract.RowTolerance
}
