// Package export 负责会话的序列化与产物落盘
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
)

// xmlEscaper 先替换&再替换其余元字符, 避免二次转义
var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// EscapeXML 转义XML的五个元字符
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// roleMarker 返回消息角色的展示标记
func roleMarker(role models.Role) string {
	if role == models.RoleAssistant {
		return "🤖 **Grok**"
	}
	return "👤 **User**"
}

// ToMarkdown 把会话序列化为Markdown文档
func ToMarkdown(conversationID string, messages []models.Message, exportedAt time.Time) string {
	var b strings.Builder
	b.WriteString("# Grok Chat Export\n\n")
	fmt.Fprintf(&b, "**Conversation ID:** %s\n\n", conversationID)
	fmt.Fprintf(&b, "**Exported:** %s\n\n", exportedAt.Format(time.RFC3339))
	b.WriteString("---\n\n")

	for _, msg := range messages {
		fmt.Fprintf(&b, "%s (%s):\n\n", roleMarker(msg.Sender), msg.Timestamp)
		b.WriteString(msg.Text)
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

// ToXML 把会话序列化为XML文档
// 输出结构固定, 手工拼接比encoding/xml更直观, 也方便控制转义行为
func ToXML(conversationID string, messages []models.Message, exportedAt time.Time) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<conversation>\n")
	b.WriteString("  <meta>\n")
	fmt.Fprintf(&b, "    <conversationId>%s</conversationId>\n", EscapeXML(conversationID))
	fmt.Fprintf(&b, "    <exportDate>%s</exportDate>\n", exportedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "    <messageCount>%d</messageCount>\n", len(messages))
	b.WriteString("  </meta>\n")
	b.WriteString("  <messages>\n")
	for _, msg := range messages {
		// 属性值已经转义过, 不能再套%q(Go转义会把反斜杠等写进属性)
		fmt.Fprintf(&b, "    <message sender=\"%s\" timestamp=\"%s\">\n",
			EscapeXML(string(msg.Sender)), EscapeXML(msg.Timestamp))
		fmt.Fprintf(&b, "      <content>%s</content>\n", EscapeXML(msg.Text))
		b.WriteString("    </message>\n")
	}
	b.WriteString("  </messages>\n")
	b.WriteString("</conversation>\n")
	return b.String()
}

// Serialize 按输出格式序列化会话
func Serialize(conversationID string, messages []models.Message, format models.OutputFormat, exportedAt time.Time) (string, error) {
	switch format {
	case models.FormatMarkdown:
		return ToMarkdown(conversationID, messages, exportedAt), nil
	case models.FormatXML:
		return ToXML(conversationID, messages, exportedAt), nil
	default:
		return "", fmt.Errorf("不支持的导出格式: %s", format)
	}
}

// ChatFileName 单个会话的导出文件名
func ChatFileName(conversationID string, format models.OutputFormat, now time.Time) string {
	return fmt.Sprintf("grok-chat-%s-%s.%s", conversationID, now.Format("2006-01-02"), format.Extension())
}

// LinksFileName 会话链接清单文件名
func LinksFileName(now time.Time) string {
	return fmt.Sprintf("grok-all-conversation-links-%s.txt", now.Format("2006-01-02"))
}

// DebugReportFileName 页面诊断报告文件名
func DebugReportFileName(now time.Time) string {
	return fmt.Sprintf("grok-debug-report-%s.txt", now.Format("2006-01-02"))
}

// LinksContent 生成链接清单内容, 每行一个完整URL
func LinksContent(links []models.ConversationLink) string {
	if len(links) == 0 {
		return ""
	}
	hrefs := make([]string, 0, len(links))
	for _, link := range links {
		hrefs = append(hrefs, link.Href)
	}
	return strings.Join(hrefs, "\n") + "\n"
}

// WriteArtifact 把导出产物写入输出目录, 返回完整路径
func WriteArtifact(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("写入文件 %s 失败: %w", path, err)
	}
	return path, nil
}
