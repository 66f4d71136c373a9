package storage

import (
	"fmt"

	"github.com/RecoveryAshes/GrokExporter/internal/models"
)

// LoadCrawlState 从存储重建爬取队列状态
// 队列键不存在时返回(nil, false, nil): 表示当前不在导出模式
func (s *Store) LoadCrawlState() (*models.CrawlQueueState, bool, error) {
	var queue []models.ConversationLink
	ok, err := s.Get(KeyQueue, &queue)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	state := &models.CrawlQueueState{
		Queue:  queue,
		Failed: []models.ConversationLink{},
	}

	if _, err := s.Get(KeyIndex, &state.Index); err != nil {
		return nil, false, err
	}
	if _, err := s.Get(KeyFormat, &state.Format); err != nil {
		return nil, false, err
	}
	if _, err := s.Get(KeyAutoScroll, &state.AutoScroll); err != nil {
		return nil, false, err
	}
	if _, err := s.Get(KeyTotal, &state.Total); err != nil {
		return nil, false, err
	}
	if _, err := s.Get(KeyRetry, &state.RetryCount); err != nil {
		return nil, false, err
	}
	if _, err := s.Get(KeyFailed, &state.Failed); err != nil {
		return nil, false, err
	}
	if _, err := s.Get(KeyRetryMode, &state.RetryMode); err != nil {
		return nil, false, err
	}
	if _, err := s.Get(KeyRunID, &state.RunID); err != nil {
		return nil, false, err
	}

	if state.Format == "" {
		state.Format = models.FormatMarkdown
	}
	if state.Total == 0 {
		state.Total = len(state.Queue)
	}
	if state.Failed == nil {
		state.Failed = []models.ConversationLink{}
	}

	if err := state.Validate(); err != nil {
		return nil, false, fmt.Errorf("持久化状态校验失败: %w", err)
	}
	return state, true, nil
}

// SaveCrawlState 将队列状态整体持久化
// 必须在每次触发导航之前完成, 这是状态机的核心不变式
func (s *Store) SaveCrawlState(state *models.CrawlQueueState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("拒绝持久化非法状态: %w", err)
	}
	return s.Set(map[string]interface{}{
		KeyQueue:      state.Queue,
		KeyIndex:      state.Index,
		KeyFormat:     state.Format,
		KeyAutoScroll: state.AutoScroll,
		KeyTotal:      state.Total,
		KeyRetry:      state.RetryCount,
		KeyFailed:     state.Failed,
		KeyRetryMode:  state.RetryMode,
		KeyRunID:      state.RunID,
	})
}

// ClearCrawlState 清除全部爬取状态键(队列走完或显式取消时)
func (s *Store) ClearCrawlState() error {
	return s.Remove(crawlKeys...)
}

// HasCrawlState 检查是否存在进行中的爬取
func (s *Store) HasCrawlState() (bool, error) {
	return s.Has(KeyQueue)
}
