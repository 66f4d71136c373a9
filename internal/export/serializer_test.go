package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
)

// TestEscapeXML 测试XML元字符转义
func TestEscapeXML(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		reason string
	}{
		{"与号", "a & b", "a &amp; b", "&必须转义"},
		{"尖括号", "<tag>", "&lt;tag&gt;", "<和>必须转义"},
		{"引号", `say "hi" and 'bye'`, "say &quot;hi&quot; and &apos;bye&apos;", "单双引号都要转义"},
		{"混合", `<a href="x">&'`, "&lt;a href=&quot;x&quot;&gt;&amp;&apos;", "五个元字符同时出现"},
		{"已转义文本", "&amp;", "&amp;amp;", "不区分已有实体, 统一二次转义输入中的&"},
		{"普通文本", "hello world 你好", "hello world 你好", "非元字符原样保留"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EscapeXML(tt.input); got != tt.want {
				t.Errorf("EscapeXML(%q) = %q, 期望 %q (%s)", tt.input, got, tt.want, tt.reason)
			}
		})
	}
}

func sampleMessages() []models.Message {
	return []models.Message{
		{Sender: models.RoleUser, Text: "What does 1 < 2 mean?", Timestamp: "2024-03-01T10:00:00Z"},
		{Sender: models.RoleAssistant, Text: "It means one is less than two.", Timestamp: "2024-03-01T10:00:05Z"},
	}
}

// TestToMarkdown 测试Markdown序列化结构
func TestToMarkdown(t *testing.T) {
	exportedAt := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	doc := ToMarkdown("1234567890", sampleMessages(), exportedAt)

	for _, want := range []string{
		"# Grok Chat Export\n",
		"**Conversation ID:** 1234567890\n",
		"**Exported:** 2024-03-01T10:30:00Z\n",
		"👤 **User** (2024-03-01T10:00:00Z):\n",
		"🤖 **Grok** (2024-03-01T10:00:05Z):\n",
		"What does 1 < 2 mean?",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("Markdown输出缺少 %q\n完整输出:\n%s", want, doc)
		}
	}
	if got := strings.Count(doc, "---"); got != 3 {
		t.Errorf("分隔线数量 = %d, 期望 3 (头部1条 + 每条消息1条)", got)
	}
}

// TestToXML 测试XML序列化结构与转义
func TestToXML(t *testing.T) {
	exportedAt := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	doc := ToXML("1234567890", sampleMessages(), exportedAt)

	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		"<conversationId>1234567890</conversationId>",
		"<exportDate>2024-03-01T10:30:00Z</exportDate>",
		"<messageCount>2</messageCount>",
		`<message sender="User" timestamp="2024-03-01T10:00:00Z">`,
		`<message sender="Grok" timestamp="2024-03-01T10:00:05Z">`,
		"<content>What does 1 &lt; 2 mean?</content>",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("XML输出缺少 %q\n完整输出:\n%s", want, doc)
		}
	}
	if strings.Contains(doc, "<content>What does 1 < 2") {
		t.Error("消息内容中的<未被转义")
	}
}

// TestToXMLAttributeValues 测试属性值只做XML转义
func TestToXMLAttributeValues(t *testing.T) {
	exportedAt := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	messages := []models.Message{
		{Sender: models.RoleUser, Text: "hello there", Timestamp: `2024\01"x`},
	}

	doc := ToXML("7", messages, exportedAt)

	// 反斜杠原样保留, 引号走XML实体, 不允许出现Go字符串转义
	if !strings.Contains(doc, `timestamp="2024\01&quot;x"`) {
		t.Errorf("属性值转义不正确:\n%s", doc)
	}
	if strings.Contains(doc, `\\`) || strings.Contains(doc, `\"`) {
		t.Errorf("属性值混入了Go字符串转义:\n%s", doc)
	}
}

// TestSerialize 测试按格式分发
func TestSerialize(t *testing.T) {
	exportedAt := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	md, err := Serialize("42", sampleMessages(), models.FormatMarkdown, exportedAt)
	if err != nil {
		t.Fatalf("Markdown序列化失败: %v", err)
	}
	if !strings.HasPrefix(md, "# Grok Chat Export") {
		t.Error("Markdown输出头部不正确")
	}

	xml, err := Serialize("42", sampleMessages(), models.FormatXML, exportedAt)
	if err != nil {
		t.Fatalf("XML序列化失败: %v", err)
	}
	if !strings.HasPrefix(xml, "<?xml") {
		t.Error("XML输出头部不正确")
	}

	if _, err := Serialize("42", sampleMessages(), models.OutputFormat("pdf"), exportedAt); err == nil {
		t.Error("未知格式必须返回错误")
	}
}

// TestFileNames 测试产物文件命名
func TestFileNames(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)

	if got := ChatFileName("1893711234567890123", models.FormatMarkdown, now); got != "grok-chat-1893711234567890123-2024-03-01.md" {
		t.Errorf("ChatFileName = %q", got)
	}
	if got := ChatFileName("42", models.FormatXML, now); got != "grok-chat-42-2024-03-01.xml" {
		t.Errorf("ChatFileName(xml) = %q", got)
	}
	if got := LinksFileName(now); got != "grok-all-conversation-links-2024-03-01.txt" {
		t.Errorf("LinksFileName = %q", got)
	}
	if got := DebugReportFileName(now); got != "grok-debug-report-2024-03-01.txt" {
		t.Errorf("DebugReportFileName = %q", got)
	}
}

// TestLinksContent 测试链接清单内容
func TestLinksContent(t *testing.T) {
	if got := LinksContent(nil); got != "" {
		t.Errorf("空清单 = %q, 期望空串", got)
	}

	links := []models.ConversationLink{
		{ConversationID: "1", Href: "https://x.com/i/grok?conversation=1"},
		{ConversationID: "2", Href: "https://x.com/i/grok?conversation=2"},
	}
	want := "https://x.com/i/grok?conversation=1\nhttps://x.com/i/grok?conversation=2\n"
	if got := LinksContent(links); got != want {
		t.Errorf("LinksContent = %q, 期望 %q (每行一个URL, 末尾换行)", got, want)
	}
}

// TestWriteArtifact 测试产物落盘
func TestWriteArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports", "nested")
	path, err := WriteArtifact(dir, "grok-chat-1-2024-03-01.md", "# content\n")
	if err != nil {
		t.Fatalf("写入产物失败: %v", err)
	}
	if path != filepath.Join(dir, "grok-chat-1-2024-03-01.md") {
		t.Errorf("返回路径 = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("回读产物失败: %v", err)
	}
	if string(data) != "# content\n" {
		t.Errorf("产物内容 = %q", string(data))
	}
}
