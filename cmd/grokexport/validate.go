package main

import (
	"fmt"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
)

// ValidateURL 验证URL格式
func ValidateURL(urlStr string) error {
	return models.ValidateURL(urlStr)
}

// ValidateFlags 验证命令行标志
func ValidateFlags(chatURL string, linksFile string, links []string, staticPage string, format string) error {
	// 导出来源互斥检查
	sources := 0
	if chatURL != "" {
		sources++
	}
	if linksFile != "" {
		sources++
	}
	if len(links) > 0 {
		sources++
	}
	if staticPage != "" {
		sources++
	}
	if sources > 1 {
		return fmt.Errorf("只能指定一种导出来源 (--url / --links-file / --links / --static-page)")
	}

	// 验证单会话URL
	if chatURL != "" {
		if err := ValidateURL(chatURL); err != nil {
			return fmt.Errorf("无效的会话URL: %w", err)
		}
		if !models.IsConversationURL(chatURL) && models.ExtractConversationID(chatURL) == "" {
			// 路径式链接在解析阶段兜底, 这里只拦截明显不是会话页的URL
			if models.IsHistoryURL(chatURL) {
				return fmt.Errorf("这是历史列表页, 批量导出请使用 --all")
			}
		}
	}

	// 验证静态页面URL
	if staticPage != "" {
		if err := ValidateURL(staticPage); err != nil {
			return fmt.Errorf("无效的静态页面URL: %w", err)
		}
	}

	// 验证格式
	if format != "" && !models.OutputFormat(format).Valid() {
		return fmt.Errorf("无效的导出格式: %s (有效值: markdown, xml)", format)
	}

	return nil
}
