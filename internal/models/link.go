package models

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// ChatHost 会话链接的目标主机
	ChatHost = "https://x.com"

	// HistoryPath Grok历史页路径(不带conversation参数即为列表页)
	HistoryPath = "/i/grok"
)

var (
	// conversationIDPattern 从查询参数提取会话ID
	conversationIDPattern = regexp.MustCompile(`conversation=(\d+)`)

	// trailingIDPattern 路径式链接的兜底: /i/grok/12345
	trailingIDPattern = regexp.MustCompile(`^\d+$`)
)

// ConversationLink 一条会话链接
// 身份由ConversationID决定(URL中提取的数字串), 单次收集内唯一
type ConversationLink struct {
	ConversationID string `json:"conversationId"` // 会话唯一ID
	Href           string `json:"href"`           // 绝对URL
}

// NormalizeHref 将相对引用归一化为绝对URL
func NormalizeHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return ChatHost + href
	}
	return ChatHost + "/" + href
}

// ParseConversationLink 从链接引用中解析会话链接
// 优先匹配conversation查询参数, 其次匹配末尾数字路径段
// 无法提取ID时返回错误
func ParseConversationLink(href string) (ConversationLink, error) {
	full := NormalizeHref(href)
	if full == "" {
		return ConversationLink{}, fmt.Errorf("空链接")
	}

	if m := conversationIDPattern.FindStringSubmatch(full); m != nil {
		return ConversationLink{ConversationID: m[1], Href: full}, nil
	}

	// 路径式兜底: /i/grok/12345
	if strings.Contains(full, HistoryPath+"/") {
		parts := strings.Split(strings.TrimRight(full, "/"), "/")
		last := parts[len(parts)-1]
		if trailingIDPattern.MatchString(last) {
			return ConversationLink{ConversationID: last, Href: full}, nil
		}
	}

	return ConversationLink{}, fmt.Errorf("链接中未找到会话ID: %s", href)
}

// ExtractConversationID 从URL中提取会话ID, 无法提取时返回空串
func ExtractConversationID(rawURL string) string {
	if m := conversationIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

// IsConversationURL 判断URL是否为单个会话页
func IsConversationURL(rawURL string) bool {
	return strings.Contains(rawURL, "conversation=")
}

// IsHistoryURL 判断URL是否为历史列表页(批量导出的合法起点)
func IsHistoryURL(rawURL string) bool {
	return strings.Contains(rawURL, HistoryPath) && !strings.Contains(rawURL, "conversation=")
}

// DedupeLinks 按会话ID去重, 保留首次出现的href, 顺序稳定
func DedupeLinks(links []ConversationLink) []ConversationLink {
	seen := make(map[string]bool, len(links))
	out := make([]ConversationLink, 0, len(links))
	for _, l := range links {
		if l.ConversationID == "" || seen[l.ConversationID] {
			continue
		}
		seen[l.ConversationID] = true
		out = append(out, l)
	}
	return out
}
