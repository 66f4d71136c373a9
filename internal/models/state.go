package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CrawlQueueState 跨导航存活的爬取队列状态
// 这是唯一跨页面导航的记忆: 宿主文档被销毁重建后必须能从持久化存储完整重建
// 不变式:
//   - 0 <= Index <= len(Queue)
//   - 会话加载成功或推进后RetryCount归零
//   - Failed按会话ID唯一
type CrawlQueueState struct {
	RunID      string             `json:"run_id"`      // 本次导出运行的唯一ID
	Queue      []ConversationLink `json:"queue"`       // 待处理会话队列
	Index      int                `json:"index"`       // 当前游标
	Format     OutputFormat       `json:"format"`      // 导出格式
	AutoScroll bool               `json:"auto_scroll"` // 导出前是否滚动加载完整历史
	Total      int                `json:"total"`       // 队列总数(用于进度显示)
	RetryCount int                `json:"retry"`       // 当前项的重试计数(上限3)
	Failed     []ConversationLink `json:"failed"`      // 失败项列表
	RetryMode  bool               `json:"retry_mode"`  // 是否处于失败重试趟
	CreatedAt  time.Time          `json:"created_at"`  // 状态创建时间
}

// NewCrawlQueueState 创建新的队列状态(主趟, 游标归零)
func NewCrawlQueueState(runID string, queue []ConversationLink, format OutputFormat, autoScroll bool) *CrawlQueueState {
	return &CrawlQueueState{
		RunID:      runID,
		Queue:      queue,
		Index:      0,
		Format:     format,
		AutoScroll: autoScroll,
		Total:      len(queue),
		RetryCount: 0,
		Failed:     []ConversationLink{},
		RetryMode:  false,
		CreatedAt:  time.Now(),
	}
}

// Validate 校验状态不变式
func (s *CrawlQueueState) Validate() error {
	if s.Index < 0 || s.Index > len(s.Queue) {
		return fmt.Errorf("游标越界: index=%d, 队列长度=%d", s.Index, len(s.Queue))
	}
	if s.RetryCount < 0 {
		return fmt.Errorf("重试计数非法: %d", s.RetryCount)
	}
	seen := make(map[string]bool, len(s.Failed))
	for _, f := range s.Failed {
		if seen[f.ConversationID] {
			return fmt.Errorf("失败列表中会话ID重复: %s", f.ConversationID)
		}
		seen[f.ConversationID] = true
	}
	return nil
}

// Current 返回当前队列项, 游标越界时返回false
func (s *CrawlQueueState) Current() (ConversationLink, bool) {
	if s.Index < 0 || s.Index >= len(s.Queue) {
		return ConversationLink{}, false
	}
	return s.Queue[s.Index], true
}

// Drained 判断主队列是否已走完
func (s *CrawlQueueState) Drained() bool {
	return s.Index >= len(s.Queue)
}

// AddFailed 将会话加入失败列表(按ID去重)
func (s *CrawlQueueState) AddFailed(link ConversationLink) {
	for _, f := range s.Failed {
		if f.ConversationID == link.ConversationID {
			return
		}
	}
	s.Failed = append(s.Failed, link)
}

// RemoveFailed 将会话移出失败列表(重试趟成功时调用)
func (s *CrawlQueueState) RemoveFailed(conversationID string) {
	out := s.Failed[:0]
	for _, f := range s.Failed {
		if f.ConversationID != conversationID {
			out = append(out, f)
		}
	}
	s.Failed = out
}

// SwapToRetryPass 切换到失败重试趟: 失败列表成为新队列, 游标归零
// 重试趟只执行一次, 不会无限嵌套
func (s *CrawlQueueState) SwapToRetryPass() {
	s.Queue = s.Failed
	s.Index = 0
	s.Total = len(s.Queue)
	s.Failed = []ConversationLink{}
	s.RetryCount = 0
	s.RetryMode = true
}

// ToJSON 序列化为JSON
func (s *CrawlQueueState) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromJSON 从JSON反序列化
func (s *CrawlQueueState) FromJSON(data []byte) error {
	return json.Unmarshal(data, s)
}

// ExportStats 导出运行统计
type ExportStats struct {
	TotalChats    int     `json:"total_chats"`    // 队列总会话数
	Exported      int     `json:"exported"`       // 成功导出数
	Skipped       int     `json:"skipped"`        // 缓存命中跳过数
	Retried       int     `json:"retried"`        // 触发过重载重试的会话数
	Failed        int     `json:"failed"`         // 最终失败数
	TotalMessages int     `json:"total_messages"` // 导出的消息总数
	Duration      float64 `json:"duration"`       // 总耗时(秒)
}
