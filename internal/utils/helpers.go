package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
)

// ReadLinksFromFile 从文件中读取会话链接列表
// 每行一个URL, 支持空行和#注释
func ReadLinksFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开链接文件失败: %w", err)
	}
	defer file.Close()

	urls := make([]string, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// 相对路径补全为完整URL
		line = models.NormalizeHref(line)

		if err := models.ValidateURL(line); err != nil {
			Warnf("跳过无效URL (行 %d): %s - %v", lineNum, line, err)
			continue
		}

		urls = append(urls, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取链接文件失败: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("链接文件中没有有效的URL")
	}

	Infof("从文件加载了 %d 个链接", len(urls))
	return urls, nil
}
