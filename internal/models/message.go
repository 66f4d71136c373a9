package models

import (
	"encoding/json"
	"time"
)

// Role 消息发送者角色
type Role string

const (
	RoleUser      Role = "User" // 用户消息
	RoleAssistant Role = "Grok" // Grok回复
)

// Other 返回对侧角色(用于交替推断)
func (r Role) Other() Role {
	if r == RoleUser {
		return RoleAssistant
	}
	return RoleUser
}

// OutputFormat 导出文档格式
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown" // 结构化文本(.md)
	FormatXML      OutputFormat = "xml"      // 结构化标记(.xml)
)

// Valid 检查格式是否受支持
func (f OutputFormat) Valid() bool {
	return f == FormatMarkdown || f == FormatXML
}

// Extension 返回格式对应的文件扩展名
func (f OutputFormat) Extension() string {
	if f == FormatXML {
		return "xml"
	}
	return "md"
}

// Message 从页面恢复出的一条会话消息
// 不变式: Text非空(去除首尾空白后), Timestamp为ISO-8601字符串
// 由消息提取器创建后不再修改,序列化器只读消费
type Message struct {
	Sender    Role   `json:"sender"`    // 发送者角色
	Text      string `json:"text"`      // 消息正文(已清洗)
	Timestamp string `json:"timestamp"` // ISO-8601时间戳(无法恢复时为导出时刻)
}

// NewMessage 创建消息,时间戳为空时回退到当前时刻
func NewMessage(sender Role, text string, timestamp string) Message {
	if timestamp == "" {
		timestamp = time.Now().Format(time.RFC3339)
	}
	return Message{Sender: sender, Text: text, Timestamp: timestamp}
}

// ToJSON 序列化为JSON
func (m *Message) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
